package models

import "time"

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Message is one entry in a Contact's conversation log.
type Message struct {
	Timestamp time.Time `json:"ts"`
	Direction Direction `json:"direction"`
	Text      string    `json:"text"`
	Approach  string    `json:"approach,omitempty"`
}

// Contact is the ledger record for one user we have ever exchanged
// messages with. At most one exists per user identifier.
type Contact struct {
	User         string    `json:"user"`
	FirstContact time.Time `json:"firstContact"`
	LastContact  time.Time `json:"lastContact"`
	Approach     string    `json:"approach"`
	Messages     []Message `json:"messages"`
	Attempts     int       `json:"attempts"`
	Responded    bool      `json:"responded"`
	Interested   bool      `json:"interested"`
	Rejected     bool      `json:"rejected"`
	Launched     bool      `json:"launched"`
}

// LeadSignals holds the raw observations a lead score is computed from.
type LeadSignals struct {
	PostCount        int    `json:"postCount"`
	FollowerCount    int    `json:"followerCount"`
	Verified         bool   `json:"verified"`
	MentionedTokens  bool   `json:"mentionedTokens"`
	MentionedFunding bool   `json:"mentionedFunding"`
	HasToken         bool   `json:"hasToken"`
	Competitor       bool   `json:"competitor"`
	Snippet          string `json:"snippet,omitempty"`
}

type Lead struct {
	User        string      `json:"user"`
	Signals     LeadSignals `json:"signals"`
	Score       int         `json:"score"`
	Launched    bool        `json:"launched"`
	LastUpdated time.Time   `json:"lastUpdated"`
}

type ApproachStats struct {
	Sent       int `json:"sent"`
	Responses  int `json:"responses"`
	Interested int `json:"interested"`
	Launched   int `json:"launched"`
}

type ApproachExample struct {
	Timestamp time.Time `json:"ts"`
	To        string    `json:"to"`
	Message   string    `json:"message"`
}

// Approach is one named outreach strategy with its lifetime counters.
type Approach struct {
	Description  string            `json:"description"`
	Template     string            `json:"template"`
	Stats        ApproachStats     `json:"stats"`
	Active       bool              `json:"active"`
	Examples     []ApproachExample `json:"examples"`
	CreatedAt    time.Time         `json:"createdAt"`
	RetiredAt    *time.Time        `json:"retiredAt,omitempty"`
	RetireReason string            `json:"retireReason,omitempty"`
}

func (a *Approach) ResponseRate() float64 {
	if a.Stats.Sent == 0 {
		return 0
	}
	return float64(a.Stats.Responses) / float64(a.Stats.Sent)
}

// ApproachesDoc is the persisted approach catalog. Retired approaches are
// moved out of Approaches so they stop receiving sends, never deleted.
type ApproachesDoc struct {
	Approaches  map[string]*Approach `json:"approaches"`
	Retired     map[string]*Approach `json:"retired"`
	LastUpdated time.Time            `json:"lastUpdated"`
}

func DefaultApproaches() *ApproachesDoc {
	return &ApproachesDoc{
		Approaches: map[string]*Approach{},
		Retired:    map[string]*Approach{},
	}
}

type LaunchStage string

const (
	StageConfirmTicker LaunchStage = "confirm_ticker"
	StageDescription   LaunchStage = "description"
	StageLaunching     LaunchStage = "launching"
)

// PendingLaunch is the live launch-flow record for one user. At most one
// non-completed record exists per user.
type PendingLaunch struct {
	User        string      `json:"user"`
	Ticker      string      `json:"ticker"`
	XHandle     string      `json:"xHandle,omitempty"`
	Description string      `json:"description,omitempty"`
	Stage       LaunchStage `json:"stage"`
	Completed   bool        `json:"completed"`
	Failed      bool        `json:"failed"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Launch is the immutable record of one completed token launch.
type Launch struct {
	User        string    `json:"user"`
	Ticker      string    `json:"ticker"`
	Contract    string    `json:"contract"`
	XHandle     string    `json:"xHandle,omitempty"`
	Description string    `json:"description,omitempty"`
	Timestamp   time.Time `json:"ts"`
}

const FollowUpMaxAttempts = 3

type FollowUp struct {
	ID           string    `json:"id"`
	User         string    `json:"user"`
	Type         string    `json:"type"`
	ScheduledFor time.Time `json:"scheduledFor"`
	Attempts     int       `json:"attempts"`
	Completed    bool      `json:"completed"`
	Outcome      string    `json:"outcome,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Stats struct {
	Outreach           int `json:"outreach"`
	Launches           int `json:"launches"`
	Comments           int `json:"comments"`
	Posts              int `json:"posts"`
	Tweets             int `json:"tweets"`
	FollowUps          int `json:"followUps"`
	ApproachesRetired  int `json:"approachesRetired"`
	ApproachesCreated  int `json:"approachesCreated"`
	ChangeRequests     int `json:"changeRequests"`
}

// State is the main persisted document: the contact ledger, derived leads,
// live launch flows, follow-up queue and processed-ID rings.
type State struct {
	Contacts        map[string]*Contact `json:"contacts"`
	Leads           map[string]*Lead    `json:"leads"`
	Prospects       []string            `json:"prospects"`
	PendingLaunches []*PendingLaunch    `json:"pendingLaunches"`
	FollowUps       []*FollowUp         `json:"followUps"`
	Launches        []Launch            `json:"launches"`

	ProcessedDMs    []string `json:"processedDMs"`
	ProcessedPosts  []string `json:"processedPosts"`
	ProcessedNotifs []string `json:"processedNotifs"`
	Upvoted         []string `json:"upvoted"`
	Followed        []string `json:"followed"`
	Subscribers     []string `json:"subscribers"`

	LastPost     time.Time `json:"lastPost"`
	LastTweet    time.Time `json:"lastTweet"`
	LastAnalysis time.Time `json:"lastAnalysis"`

	Stats Stats `json:"stats"`
}

func DefaultState() *State {
	return &State{
		Contacts: map[string]*Contact{},
		Leads:    map[string]*Lead{},
	}
}

// ActivePendingLaunch returns the open launch flow for user, if any.
func (s *State) ActivePendingLaunch(user string) *PendingLaunch {
	for _, pl := range s.PendingLaunches {
		if pl.User == user && !pl.Completed {
			return pl
		}
	}
	return nil
}

func (s *State) OpenFollowUp(user string) *FollowUp {
	for _, f := range s.FollowUps {
		if f.User == user && !f.Completed {
			return f
		}
	}
	return nil
}

func (s *State) Lead(user string) *Lead {
	return s.Leads[user]
}

// EnsureLead returns the lead for user, creating it at the base state if
// it has not been observed before.
func (s *State) EnsureLead(user string, now time.Time) *Lead {
	if l, ok := s.Leads[user]; ok {
		return l
	}
	l := &Lead{User: user, LastUpdated: now}
	s.Leads[user] = l
	return l
}

// Relationship is the long-lived memory for one user, kept separately from
// the contact ledger so analysis can trim one without the other.
type Relationship struct {
	User     string    `json:"user"`
	Notes    []string  `json:"notes"`
	Outcome  string    `json:"outcome,omitempty"`
	LastSeen time.Time `json:"lastSeen"`
}

type RelationshipsDoc struct {
	Relationships map[string]*Relationship `json:"relationships"`
}

func DefaultRelationships() *RelationshipsDoc {
	return &RelationshipsDoc{Relationships: map[string]*Relationship{}}
}

// IdentityLink records a confirmed cross-platform handle for a user.
// Links are only created from an explicit self-attribution statement.
type IdentityLink struct {
	User        string    `json:"user"`
	XHandle     string    `json:"xHandle"`
	ConfirmedAt time.Time `json:"confirmedAt"`
}

type IdentitiesDoc struct {
	Links map[string]*IdentityLink `json:"links"`
}

func DefaultIdentities() *IdentitiesDoc {
	return &IdentitiesDoc{Links: map[string]*IdentityLink{}}
}

// HandleClaim is an unconfirmed handle sighting awaiting user confirmation.
type HandleClaim struct {
	User      string    `json:"user"`
	Handle    string    `json:"handle"`
	Source    string    `json:"source"`
	ClaimedAt time.Time `json:"claimedAt"`
}

type ClaimsDoc struct {
	Claims []HandleClaim `json:"claims"`
}

func DefaultClaims() *ClaimsDoc {
	return &ClaimsDoc{}
}

type Insight struct {
	Timestamp time.Time `json:"ts"`
	Text      string    `json:"text"`
	Stats     Stats     `json:"stats"`
}

type LearningsDoc struct {
	Insights []Insight `json:"insights"`
}

func DefaultLearnings() *LearningsDoc {
	return &LearningsDoc{}
}

// ChangeRequest is a proposed behavior change recorded for operator review.
// Nothing in the system ever applies one automatically.
type ChangeRequest struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Rationale string    `json:"rationale"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type ChangesDoc struct {
	Requests []ChangeRequest `json:"requests"`
}

func DefaultChanges() *ChangesDoc {
	return &ChangesDoc{}
}
