package domain

import "time"

// Tab is the active mode of a session
type Tab string

const (
	TabMatch    Tab = "match"
	TabLiveness Tab = "liveness"
	TabAnalyze  Tab = "analyze"
)

// TabInfo pairs a tab key with its display label
type TabInfo struct {
	Key   Tab    `json:"key"`
	Label string `json:"label"`
}

// Tabs lists the tabs in display order
var Tabs = []TabInfo{
	{Key: TabMatch, Label: "FACE MATCHING"},
	{Key: TabLiveness, Label: "LIVENESS"},
	{Key: TabAnalyze, Label: "ANALYZE"},
}

// ParseTab validates a tab key
func ParseTab(s string) (Tab, error) {
	switch Tab(s) {
	case TabMatch, TabLiveness, TabAnalyze:
		return Tab(s), nil
	}
	return "", ErrInvalidTab
}

// Slot identifies one of the two image slots
type Slot int

const (
	SlotOne Slot = iota
	SlotTwo
)

func (s Slot) String() string {
	if s == SlotTwo {
		return "two"
	}
	return "one"
}

// ParseSlot accepts "one"/"two" and "1"/"2"
func ParseSlot(s string) (Slot, error) {
	switch s {
	case "one", "1":
		return SlotOne, nil
	case "two", "2":
		return SlotTwo, nil
	}
	return 0, ErrInvalidSlot
}

// NoticeKind classifies a user facing notice
type NoticeKind string

const (
	NoticeValidation NoticeKind = "validation"
	NoticeTransport  NoticeKind = "transport"
	NoticeLogical    NoticeKind = "logical"
	NoticeParse      NoticeKind = "parse"
)

// Notice is the last message surfaced to the user
type Notice struct {
	Kind      NoticeKind `json:"kind"`
	Code      string     `json:"code"`
	Message   string     `json:"message"`
	CreatedAt time.Time  `json:"created_at"`
}
