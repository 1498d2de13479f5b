// Package types holds the shared data model of the review ledger: papers,
// reviews, encrypted handles and the small enums that describe a handle's
// role and verification state.
package types

import (
	"fmt"
	"time"
)

// HandleID identifies a ciphertext held by the confidential-compute
// substrate. IDs are substrate-assigned: the hex SHA-256 digest over the
// handle's role and the canonical ciphertext bytes, so the same ciphertext
// under two roles yields two distinct handles.
type HandleID string

func (id HandleID) String() string {
	return string(id)
}

func (id HandleID) IsZero() bool {
	return id == ""
}

// HandleRole describes what a handle's ciphertext encrypts.
type HandleRole int

const (
	RoleContent HandleRole = iota
	RoleScore
	RoleAggregate
)

func (r HandleRole) String() string {
	switch r {
	case RoleContent:
		return "content"
	case RoleScore:
		return "score"
	case RoleAggregate:
		return "aggregate"
	}
	return "unknown"
}

func (r HandleRole) Bytes() []byte {
	return []byte{byte(r)}
}

func (r *HandleRole) FromBytes(b []byte) error {
	if len(b) != 1 {
		return fmt.Errorf("invalid byte length for HandleRole: %d", len(b))
	}
	*r = HandleRole(b[0])
	return nil
}

// HandleState is the verification state of a handle. There are exactly two
// states; the transition Encrypted -> Verified happens once and never
// reverts.
type HandleState int

const (
	StateEncrypted HandleState = iota
	StateVerified
)

func (s HandleState) String() string {
	switch s {
	case StateEncrypted:
		return "encrypted"
	case StateVerified:
		return "verified"
	}
	return "unknown"
}

// Owner names the record a handle belongs to. A handle belongs either to a
// paper (ReviewIndex == -1) or to one review of a paper.
type Owner struct {
	PaperID     string `json:"paperId"`
	ReviewIndex int    `json:"reviewIndex"`
}

// PaperOwner returns the owner value for a paper-level handle.
func PaperOwner(paperID string) Owner {
	return Owner{PaperID: paperID, ReviewIndex: -1}
}

// ReviewOwner returns the owner value for a review's score handle.
func ReviewOwner(paperID string, index int) Owner {
	return Owner{PaperID: paperID, ReviewIndex: index}
}

func (o Owner) String() string {
	if o.ReviewIndex < 0 {
		return o.PaperID
	}
	return fmt.Sprintf("%s/%d", o.PaperID, o.ReviewIndex)
}

// Handle is the registry record for one ciphertext. ClearValue is
// meaningful only when State == StateVerified; the pair moves together in a
// single transition.
type Handle struct {
	ID                  HandleID    `json:"id"`
	Ciphertext          string      `json:"ciphertext"` // canonical lowercase hex
	Owner               Owner       `json:"owner"`
	Role                HandleRole  `json:"role"`
	PubliclyDecryptable bool        `json:"publiclyDecryptable"`
	State               HandleState `json:"state"`
	ClearValue          uint64      `json:"clearValue"`
	RegisteredAt        time.Time   `json:"registeredAt"`
	VerifiedAt          time.Time   `json:"verifiedAt,omitempty"`
}

// Verified reports whether the handle has completed the one-shot
// verification transition.
func (h Handle) Verified() bool {
	return h.State == StateVerified
}

// Paper is the submission record. Reviews are referenced by their index;
// the review records themselves live next to the paper in the record store.
type Paper struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Submitter       string    `json:"submitter"`
	SubmittedAt     time.Time `json:"submittedAt"`
	ContentHandle   HandleID  `json:"contentHandle"`
	ReviewCount     int       `json:"reviewCount"`
	AggregateHandle HandleID  `json:"aggregateHandle,omitempty"`
	// AggregatedReviews is the number of reviews folded into the current
	// aggregate handle. Zero means no aggregate has been produced yet.
	AggregatedReviews int       `json:"aggregatedReviews"`
	Published         bool      `json:"published"`
	PublishedAt       time.Time `json:"publishedAt,omitempty"`
}

// Review is one reviewer's submission against a paper. Index is assigned at
// append time, starts at 0 per paper and is never reused or reordered. The
// comments blob is an opaque ciphertext that is never aggregated.
type Review struct {
	PaperID            string    `json:"paperId"`
	Index              int       `json:"index"`
	Reviewer           string    `json:"reviewer"`
	SubmittedAt        time.Time `json:"submittedAt"`
	ScoreHandle        HandleID  `json:"scoreHandle"`
	CommentsCiphertext []byte    `json:"commentsCiphertext,omitempty"`
}

// VerifiedResult is the outcome of a verification call. AlreadyVerified is
// set when the handle had completed its transition before this call; the
// stored clear value is returned either way so retries behave like reads.
type VerifiedResult struct {
	Handle          HandleID `json:"handle"`
	ClearValue      uint64   `json:"clearValue"`
	AlreadyVerified bool     `json:"alreadyVerified"`
}
