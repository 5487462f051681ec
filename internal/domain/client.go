package domain

import "strings"

// Client is a read-only client directory entry used to enrich task cards.
type Client struct {
	ID      ClientID
	Name    string
	Address string
}

// NewClient constructs a new value for this package.
func NewClient(id ClientID, name, address string) (Client, error) {
	id = ClientID(strings.TrimSpace(string(id)))
	if id == "" {
		return Client{}, ErrInvalidID
	}
	return Client{
		ID:      id,
		Name:    strings.TrimSpace(name),
		Address: strings.TrimSpace(address),
	}, nil
}

// Matches reports whether query is a case-insensitive substring of the client's
// name or address. An empty query matches every client.
func (c Client) Matches(query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.Name), query) ||
		strings.Contains(strings.ToLower(c.Address), query)
}
