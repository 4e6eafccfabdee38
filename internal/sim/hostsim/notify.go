package hostsim

import "log"

// Notices records popup messages and mirrors them to a logger.
type Notices struct {
	Logger *log.Logger
	// Limit caps the retained history; zero keeps everything.
	Limit int

	msgs []string
}

func (n *Notices) PopupAndLog(msg string) {
	if n.Logger != nil {
		n.Logger.Printf("popup: %s", msg)
	}
	n.msgs = append(n.msgs, msg)
	if n.Limit > 0 && len(n.msgs) > n.Limit {
		n.msgs = append([]string(nil), n.msgs[len(n.msgs)-n.Limit:]...)
	}
}

func (n *Notices) Messages() []string { return append([]string(nil), n.msgs...) }

// Last returns the most recent message, or "".
func (n *Notices) Last() string {
	if len(n.msgs) == 0 {
		return ""
	}
	return n.msgs[len(n.msgs)-1]
}
