// Package persona provides the audience profile value object used to
// personalize article relevance scoring.
package persona

import "strings"

// Persona describes the recipient an article batch is being ranked for.
// Every attribute is optional; scoring degrades gracefully when any or
// all are absent.
type Persona struct {
	RecipientName       string `json:"recipient_name,omitempty"`
	JobTitle            string `json:"job_title,omitempty"`
	Company             string `json:"company,omitempty"`
	ConversationContext string `json:"conversation_context,omitempty"`
	PersonalityTraits   string `json:"personality_traits,omitempty"`
}

// IsEmpty reports whether no attribute is set at all.
// An empty persona reduces scoring to the pure recency path.
func (p Persona) IsEmpty() bool {
	return p.RecipientName == "" &&
		p.JobTitle == "" &&
		p.Company == "" &&
		p.ConversationContext == "" &&
		p.PersonalityTraits == ""
}

// Description renders the persona as ordered attribute lines for
// inclusion in oracle prompts. Absent attributes are omitted so the
// prompt never contains empty fields.
func (p Persona) Description() string {
	var b strings.Builder
	if p.RecipientName != "" {
		b.WriteString("Recipient: " + p.RecipientName + "\n")
	}
	if p.JobTitle != "" {
		b.WriteString("Job title: " + p.JobTitle + "\n")
	}
	if p.Company != "" {
		b.WriteString("Company: " + p.Company + "\n")
	}
	if p.ConversationContext != "" {
		b.WriteString("Previous conversation context: " + p.ConversationContext + "\n")
	}
	if p.PersonalityTraits != "" {
		b.WriteString("Personality traits: " + p.PersonalityTraits + "\n")
	}
	return b.String()
}
