package trigger

// Attachment is a file uploaded with a message.
type Attachment struct {
	Filename string
	URL      string
}

// Message is the host-neutral view of an inbound chat message.
type Message struct {
	ID          string
	GuildID     string
	ChannelID   string
	AuthorID    string
	AuthorRoles []string
	AuthorIsBot bool
	Content     string
	Attachments []Attachment
	Edited      bool

	// Nonce is set by hosts on messages they synthesize when replaying a
	// command on behalf of a trigger.
	Nonce string
}

// Filenames returns the names of the message's attachments.
func (m *Message) Filenames() []string {
	if len(m.Attachments) == 0 {
		return nil
	}
	names := make([]string, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		names = append(names, a.Filename)
	}
	return names
}

// scopes lists every identifier the message originates from.
func (m *Message) scopes() []string {
	ids := make([]string, 0, 2+len(m.AuthorRoles))
	ids = append(ids, m.ChannelID, m.AuthorID)
	return append(ids, m.AuthorRoles...)
}
