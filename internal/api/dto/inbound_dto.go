package dto

// InboundEmailRequest is the webhook transport for the ingestion pipeline.
// Identifier fields may arrive either dedicated or buried in RawHeaders.
type InboundEmailRequest struct {
	From       string   `json:"from" form:"from"`
	FromName   string   `json:"from_name" form:"from_name"`
	To         []string `json:"to" form:"to"`
	Subject    string   `json:"subject" form:"subject"`
	Body       string   `json:"body" form:"body"`
	HTML       string   `json:"html" form:"html"`
	MessageID  string   `json:"message_id" form:"message_id"`
	InReplyTo  string   `json:"in_reply_to" form:"in_reply_to"`
	RawHeaders string   `json:"headers" form:"headers"`
}
