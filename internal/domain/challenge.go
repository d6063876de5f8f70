package domain

import "time"

// ChallengeSession is the live state of a user's "no stutter" challenge.
// A record exists only while the challenge is active.
type ChallengeSession struct {
	UserID         string    `json:"userId"`
	StartTime      time.Time `json:"startTime"`
	LastTranscript string    `json:"lastTranscript"`
	LastChangeTime time.Time `json:"lastChangeTime"`
	IsSpeaking     bool      `json:"isSpeaking"`
}

// LastActivity returns the most recent instant the challenge saw progress.
func (c *ChallengeSession) LastActivity() time.Time {
	if c.LastChangeTime.After(c.StartTime) {
		return c.LastChangeTime
	}
	return c.StartTime
}
