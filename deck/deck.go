package deck

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Slide 一页演示内容，Ballots 是这一页开放投票的结构化表决键
type Slide struct {
	ID         string   `yaml:"id"`
	Title      string   `yaml:"title"`
	Ballots    []string `yaml:"ballots"`
	FloorVotes bool     `yaml:"floorVotes"`
}

// Deck 有序的幻灯片列表
type Deck struct {
	Slides []Slide `yaml:"slides"`
}

// ErrEmptyDeck 没有任何幻灯片
var ErrEmptyDeck = errors.New("deck has no slides")

// Default 内置的会议流程
func Default() *Deck {
	return &Deck{Slides: []Slide{
		{ID: "welcome", Title: "Welcome & Call to Order"},
		{ID: "agenda", Title: "Adoption of the Agenda", Ballots: []string{"agenda-adoption"}},
		{ID: "minutes", Title: "Approval of the Minutes", Ballots: []string{"minutes-approval"}},
		{ID: "treasury", Title: "Treasury Report", Ballots: []string{"treasury-report"}},
		{ID: "new-business", Title: "New Business", Ballots: []string{"new-business"}, FloorVotes: true},
		{ID: "adjournment", Title: "Adjournment", Ballots: []string{"adjournment"}},
	}}
}

// Parse 解析YAML格式的幻灯片
func Parse(data []byte) (*Deck, error) {
	var d Deck
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse deck: %w", err)
	}
	if len(d.Slides) == 0 {
		return nil, ErrEmptyDeck
	}
	seen := make(map[string]bool, len(d.Slides))
	for i, s := range d.Slides {
		if s.ID == "" {
			return nil, fmt.Errorf("parse deck: slide %d has no id", i)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("parse deck: duplicate slide id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return &d, nil
}

// Load 从文件读取幻灯片；path 为空时返回内置流程
func Load(path string) (*Deck, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deck: %w", err)
	}
	return Parse(data)
}

// BallotKeys 所有幻灯片引用的表决键，按出现顺序去重
func (d *Deck) BallotKeys() []string {
	var keys []string
	seen := make(map[string]bool)
	for _, s := range d.Slides {
		for _, k := range s.Ballots {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	return keys
}
