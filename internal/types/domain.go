package types

import "fmt"

// NotificationRequest is the inbound payload announcing newly published
// content. Type and Description are required; RecipientID optionally narrows
// delivery to a single directory user.
type NotificationRequest struct {
	Type        string `json:"type" validate:"required"`
	Description string `json:"description" validate:"required"`
	RecipientID string `json:"recipientId,omitempty"`
}

// DirectoryUser is the subset of an identity provider account consumed by
// recipient resolution. Email is empty when the account has none on file.
type DirectoryUser struct {
	UID   string
	Email string
}

// RecipientSet is an ordered sequence of unique, non-empty email addresses.
type RecipientSet []string

// NotificationMessage is the rendered email shared by every recipient.
type NotificationMessage struct {
	Subject  string
	HTMLBody string
}

// SenderIdentity defines the sender for outgoing emails.
type SenderIdentity struct {
	Name    string
	Address string
}

// String formats the identity as an RFC 5322 mailbox ("Name <address>").
func (s SenderIdentity) String() string {
	if s.Name == "" {
		return s.Address
	}
	return fmt.Sprintf("%s <%s>", s.Name, s.Address)
}

// SendInput defines the contract for email transmission. To and Bcc accept
// any number of addresses; providers submit the whole input as a single
// transaction.
type SendInput struct {
	From        SenderIdentity
	To          []string
	Bcc         []string
	Subject     string
	HTML        string
	ReferenceID string
}

// Recipients returns the number of addresses the input is delivered to.
func (in SendInput) Recipients() int {
	return len(in.To) + len(in.Bcc)
}

// DispatchMode selects how a NotificationMessage is submitted to the email
// provider.
type DispatchMode string

const (
	// DispatchTo sends one provider call with every recipient in "to".
	DispatchTo DispatchMode = "to"
	// DispatchBcc sends one provider call with every recipient in "bcc" and a
	// placeholder "to" address.
	DispatchBcc DispatchMode = "bcc"
	// DispatchFanout sends one provider call per recipient, concurrently.
	DispatchFanout DispatchMode = "fanout"
)

// Valid reports whether m is a known dispatch mode.
func (m DispatchMode) Valid() bool {
	switch m {
	case DispatchTo, DispatchBcc, DispatchFanout:
		return true
	}
	return false
}

// SendOutcome records the result of a single provider call.
type SendOutcome struct {
	Recipients        []string
	ProviderMessageID string
	Err               error
}
