package topics

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("topic not found")

type Kind string

const (
	KindNews          Kind = "news"
	KindMisconception Kind = "misconception"
	KindIssue         Kind = "issue"
)

// Topic describes one section of the site and where its headlines come from.
type Topic struct {
	Name     string   `yaml:"name"`  // section key used in URLs
	Title    string   `yaml:"title"` // human readable section title
	Kind     Kind     `yaml:"kind"`
	Query    string   `yaml:"query"`    // NewsAPI q parameter
	Country  string   `yaml:"country"`  // NewsAPI country parameter
	Category string   `yaml:"category"` // NewsAPI category parameter
	Feeds    []string `yaml:"feeds"`    // RSS/Atom feeds used instead of NewsAPI
	Filters  []Filter `yaml:"filters"`
}

type Filter struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

type file struct {
	Topics []Topic `yaml:"topics"`
}

// Set is the ordered, immutable list of configured topics.
type Set struct {
	topics []Topic
	byName map[string]int
}

func NewSet(topics []Topic) (*Set, error) {
	s := &Set{
		topics: make([]Topic, 0, len(topics)),
		byName: make(map[string]int, len(topics)),
	}

	for i, topic := range topics {
		applyDefaults(&topic)
		if err := validate(topic); err != nil {
			return nil, fmt.Errorf("invalid topic at index %d: %w", i, err)
		}
		if _, exists := s.byName[topic.Name]; exists {
			return nil, fmt.Errorf("duplicate topic name '%s'", topic.Name)
		}
		s.byName[topic.Name] = len(s.topics)
		s.topics = append(s.topics, topic)
	}

	if len(s.topics) == 0 {
		return nil, fmt.Errorf("at least one topic is required")
	}

	return s, nil
}

// Load reads topics from a YAML file. A missing file yields the default set.
func Load(path string) (*Set, error) {
	if path == "" {
		return NewSet(Defaults())
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Info("Topics file not found, using defaults", "path", path)
		return NewSet(Defaults())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	set, err := NewSet(f.Topics)
	if err != nil {
		return nil, fmt.Errorf("invalid topics file %s: %w", path, err)
	}

	for _, topic := range set.topics {
		slog.Debug("Topic loaded", "name", topic.Name, "kind", topic.Kind, "feeds", len(topic.Feeds), "filters", len(topic.Filters))
	}

	return set, nil
}

func Defaults() []Topic {
	return []Topic{
		{Name: "news", Title: "Latest News", Kind: KindNews, Country: "us"},
		{Name: "misconceptions", Title: "Common Misconceptions", Kind: KindMisconception},
		{Name: "issues", Title: "Ongoing Issues", Kind: KindIssue},
	}
}

func (s *Set) All() []Topic {
	topics := make([]Topic, len(s.topics))
	copy(topics, s.topics)
	return topics
}

func (s *Set) Names() []string {
	names := make([]string, len(s.topics))
	for i, topic := range s.topics {
		names[i] = topic.Name
	}
	return names
}

func (s *Set) Get(name string) (Topic, error) {
	i, ok := s.byName[name]
	if !ok {
		return Topic{}, fmt.Errorf("%w: '%s'", ErrNotFound, name)
	}
	return s.topics[i], nil
}

func (s *Set) Len() int {
	return len(s.topics)
}

// Allows applies the topic's keyword filters to a headline. Excludes win
// over includes; a filter with includes requires at least one match.
func (t Topic) Allows(headline string) bool {
	for _, filter := range t.Filters {
		for _, exclude := range filter.Excludes {
			if matches(headline, exclude) {
				return false
			}
		}

		if len(filter.Includes) > 0 {
			matched := false
			for _, include := range filter.Includes {
				if matches(headline, include) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
	}

	return true
}

func matches(value, pattern string) bool {
	return strings.Contains(strings.ToLower(value), strings.ToLower(pattern))
}

func applyDefaults(topic *Topic) {
	topic.Name = strings.TrimSpace(topic.Name)
	if topic.Kind == "" {
		topic.Kind = KindNews
	}
	if topic.Title == "" {
		topic.Title = topic.Name
	}
	if topic.Kind == KindNews && len(topic.Feeds) == 0 &&
		topic.Query == "" && topic.Country == "" && topic.Category == "" {
		topic.Country = "us"
	}
}

func validate(topic Topic) error {
	if topic.Name == "" {
		return fmt.Errorf("topic name is required")
	}
	if strings.ContainsAny(topic.Name, "/ ?#") {
		return fmt.Errorf("topic name '%s' must be URL safe", topic.Name)
	}

	switch topic.Kind {
	case KindNews, KindMisconception, KindIssue:
	default:
		return fmt.Errorf("invalid kind '%s' for topic '%s'", topic.Kind, topic.Name)
	}

	for i, filter := range topic.Filters {
		if len(filter.Includes) == 0 && len(filter.Excludes) == 0 {
			return fmt.Errorf("filter at index %d must have at least one include or exclude rule", i)
		}
	}

	return nil
}
