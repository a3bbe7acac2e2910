package server

type clientSet map[*Client]struct{}

// registry indexes connected clients by subscription. It is owned by the
// ChatServer run loop and is not safe for concurrent use.
type registry struct {
	byConversation map[string]clientSet
	byUser         map[string]clientSet
}

func newRegistry() *registry {
	return &registry{
		byConversation: make(map[string]clientSet),
		byUser:         make(map[string]clientSet),
	}
}

func addTo(idx map[string]clientSet, key string, c *Client) {
	set, ok := idx[key]
	if !ok {
		set = make(clientSet)
		idx[key] = set
	}
	set[c] = struct{}{}
}

func removeFrom(idx map[string]clientSet, key string, c *Client) bool {
	set, ok := idx[key]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}

	delete(set, c)
	if len(set) == 0 {
		delete(idx, key)
	}
	return true
}

func (r *registry) add(c *Client) {
	if c.sub.UserWide {
		addTo(r.byUser, c.user.Id, c)
	}
	if c.sub.ConversationId != "" {
		addTo(r.byConversation, c.sub.ConversationId, c)
	}
}

// remove reports whether the client was registered. Empty sets are pruned.
func (r *registry) remove(c *Client) bool {
	var removed bool
	if c.sub.UserWide {
		removed = removeFrom(r.byUser, c.user.Id, c) || removed
	}
	if c.sub.ConversationId != "" {
		removed = removeFrom(r.byConversation, c.sub.ConversationId, c) || removed
	}
	return removed
}

// recipients lists the author's user-wide clients followed by the
// conversation's clients. A client subscribed both ways appears twice unless
// dedupe is set.
func (r *registry) recipients(conversationId, author string, dedupe bool) []*Client {
	var out []*Client
	seen := make(clientSet)

	appendSet := func(set clientSet) {
		for c := range set {
			if _, ok := seen[c]; ok && dedupe {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}

	if author != "" {
		appendSet(r.byUser[author])
	}
	appendSet(r.byConversation[conversationId])

	return out
}

// clients returns every registered client once.
func (r *registry) clients() []*Client {
	seen := make(clientSet)
	var out []*Client
	for _, idx := range []map[string]clientSet{r.byUser, r.byConversation} {
		for _, set := range idx {
			for c := range set {
				if _, ok := seen[c]; ok {
					continue
				}
				seen[c] = struct{}{}
				out = append(out, c)
			}
		}
	}
	return out
}
