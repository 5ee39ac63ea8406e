package content

import (
	"sync"
	"time"
)

type AppendResult int

const (
	Appended AppendResult = iota
	Duplicate
	Full
	UnknownSection
)

func (r AppendResult) String() string {
	switch r {
	case Appended:
		return "appended"
	case Duplicate:
		return "duplicate"
	case Full:
		return "full"
	case UnknownSection:
		return "unknown_section"
	default:
		return "unknown"
	}
}

type SectionStats struct {
	Name           string
	Headlines      int
	Articles       int
	LastUpdateTime time.Time
}

type section struct {
	headlines  []string
	queued     map[string]bool
	articles   []string
	articleIDs map[string]bool
	produced   map[string]bool // headlines already expanded into an article
	lastUpdate time.Time
}

// Sections holds the per-section headline queues and article lists behind a
// single mutex. Article records live in the Store; the section lock is never
// held while the Store lock is taken.
type Sections struct {
	store       *Store
	maxArticles int
	order       []string
	sections    map[string]*section
	mu          sync.Mutex
}

func NewSections(store *Store, names []string, maxArticles int) *Sections {
	s := &Sections{
		store:       store,
		maxArticles: maxArticles,
		sections:    make(map[string]*section, len(names)),
	}

	for _, name := range names {
		if _, exists := s.sections[name]; exists {
			continue
		}
		s.order = append(s.order, name)
		s.sections[name] = &section{
			queued:     make(map[string]bool),
			articleIDs: make(map[string]bool),
			produced:   make(map[string]bool),
		}
	}

	return s
}

// Names returns section names in configured order.
func (s *Sections) Names() []string {
	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

func (s *Sections) Has(name string) bool {
	_, ok := s.sections[name]
	return ok
}

func (s *Sections) MaxArticles() int {
	return s.maxArticles
}

func (s *Sections) HeadlineCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.sections[name]
	if !ok {
		return 0
	}
	return len(sec.headlines)
}

func (s *Sections) ArticleCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.sections[name]
	if !ok {
		return 0
	}
	return len(sec.articles)
}

// EnqueueHeadlines appends headlines that are neither queued nor already
// expanded into an article of the section. Order is preserved. It returns
// the number of headlines added.
func (s *Sections) EnqueueHeadlines(name string, headlines []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.sections[name]
	if !ok {
		return 0
	}

	added := 0
	for _, headline := range headlines {
		if headline == "" || sec.queued[headline] || sec.produced[headline] {
			continue
		}
		sec.headlines = append(sec.headlines, headline)
		sec.queued[headline] = true
		added++
	}

	return added
}

func (s *Sections) DequeueHeadline(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.sections[name]
	if !ok || len(sec.headlines) == 0 {
		return "", false
	}

	headline := sec.headlines[0]
	sec.headlines[0] = ""
	sec.headlines = sec.headlines[1:]
	delete(sec.queued, headline)

	return headline, true
}

// AppendArticle adds the article id to the section if it is new and the
// section has room, then stores the full record.
func (s *Sections) AppendArticle(name string, article Article) AppendResult {
	result := s.appendID(name, article)
	if result == Appended {
		s.store.Put(article)
	}
	return result
}

func (s *Sections) appendID(name string, article Article) AppendResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.sections[name]
	if !ok {
		return UnknownSection
	}
	if sec.articleIDs[article.ID] {
		return Duplicate
	}
	if len(sec.articles) >= s.maxArticles {
		return Full
	}

	sec.articles = append(sec.articles, article.ID)
	sec.articleIDs[article.ID] = true
	if article.Headline != "" {
		sec.produced[article.Headline] = true
	}
	sec.lastUpdate = time.Now()

	return Appended
}

// Snapshot resolves the section's articles in append order. Ids are copied
// under the section lock and resolved after it is released.
func (s *Sections) Snapshot(name string) []Article {
	ids := s.articleIDsCopy(name)

	articles := make([]Article, 0, len(ids))
	for _, id := range ids {
		if article, ok := s.store.Get(id); ok {
			articles = append(articles, article)
		}
	}
	return articles
}

func (s *Sections) articleIDsCopy(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.sections[name]
	if !ok {
		return nil
	}

	n := min(len(sec.articles), s.maxArticles)
	ids := make([]string, n)
	copy(ids, sec.articles[:n])
	return ids
}

func (s *Sections) Stats(name string) (SectionStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.sections[name]
	if !ok {
		return SectionStats{}, false
	}

	return SectionStats{
		Name:           name,
		Headlines:      len(sec.headlines),
		Articles:       len(sec.articles),
		LastUpdateTime: sec.lastUpdate,
	}, true
}

func (s *Sections) Full(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sec, ok := s.sections[name]
	if !ok {
		return true
	}
	return len(sec.articles) >= s.maxArticles
}

func (s *Sections) AllFull() bool {
	return s.AllReached(s.maxArticles)
}

// AllReached reports whether every section holds at least target articles.
func (s *Sections) AllReached(target int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sec := range s.sections {
		if len(sec.articles) < target {
			return false
		}
	}
	return true
}
