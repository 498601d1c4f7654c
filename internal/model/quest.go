package model

// Student event types that can advance quest progress. The HTTP and NATS
// boundaries reject anything outside this set.
const (
	EventStoryCompleted = "story_completed"
	EventChapterRead    = "chapter_read"
	EventDailyLogin     = "daily_login"
	EventBookmarkAdded  = "bookmark_added"
	EventItemRedeemed   = "item_redeemed"
)

// KnownEventType reports whether eventType is one of the enumerated student events.
func KnownEventType(eventType string) bool {
	switch eventType {
	case EventStoryCompleted, EventChapterRead, EventDailyLogin, EventBookmarkAdded, EventItemRedeemed:
		return true
	}
	return false
}

// Quest is a catalog entry: do TriggerEvent Target times, earn Reward coins.
type Quest struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	TriggerEvent string `json:"trigger_event"`
	Target       int    `json:"target"`
	Reward       int64  `json:"reward"`
}

// QuestProgressEntry is one account's counter against one quest. The full
// entry set is replaced atomically on every update; Progress never decreases
// and Completed is never un-set.
type QuestProgressEntry struct {
	QuestID   string `json:"quest_id"`
	Progress  int    `json:"progress"`
	Completed bool   `json:"completed"`
}

type QuestEventRequest struct {
	AccountID string `json:"account_id"`
	EventType string `json:"event_type"`
	Value     int    `json:"value,omitempty"`
}

type QuestEventResult struct {
	CoinsEarned int64 `json:"coins_earned"`
}

// QuestCompletedEvent is published to the bus when an account finishes a quest.
type QuestCompletedEvent struct {
	AccountID string `json:"account_id"`
	QuestID   string `json:"quest_id"`
	Reward    int64  `json:"reward"`
}
