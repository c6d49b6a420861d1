package editor

const noticeBuffer = 16

// NoticeKind classifies a user-visible notification
type NoticeKind string

const (
	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// Notice is a user-visible notification
type Notice struct {
	Kind    NoticeKind
	Message string
}

// Notices returns the notification channel. It is closed by Close.
func (s *Session) Notices() <-chan Notice {
	return s.notices
}

// notify must be called with s.mu held. When nobody is reading, the
// oldest notice is dropped.
func (s *Session) notify(kind NoticeKind, msg string) {
	if s.state == Closed {
		return
	}
	n := Notice{Kind: kind, Message: msg}
	for {
		select {
		case s.notices <- n:
			return
		default:
		}
		select {
		case <-s.notices:
		default:
		}
	}
}
