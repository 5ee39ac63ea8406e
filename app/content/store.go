package content

import (
	"sync"
)

// Store keeps every generated article for the lifetime of the process.
// There is no eviction.
type Store struct {
	articles map[string]Article
	mu       sync.RWMutex
}

func NewStore() *Store {
	return &Store{
		articles: make(map[string]Article),
	}
}

func (s *Store) Put(article Article) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.articles[article.ID] = article
}

func (s *Store) Get(id string) (Article, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	article, ok := s.articles[id]
	return article, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.articles)
}
