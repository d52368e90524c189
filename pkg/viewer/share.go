package viewer

import (
	"github.com/illmade-knight/go-comiccache/pkg/comic"
	"github.com/illmade-knight/go-comiccache/pkg/datekey"
)

// ShareTarget names where a comic is being shared to.
type ShareTarget string

const (
	ShareMail  ShareTarget = "mail"
	ShareOther ShareTarget = "other"
)

// SharePayload is what a share target receives. It is either a MailShare or
// a GenericShare.
type SharePayload interface {
	Target() ShareTarget
	sharePayload()
}

// MailShare carries the image, the configured mail body and AppName as subject.
type MailShare struct {
	Day     datekey.Day
	Image   *comic.Blob
	Subject string
	Body    string
}

func (MailShare) Target() ShareTarget { return ShareMail }
func (MailShare) sharePayload()       {}

// GenericShare carries the image and the subject only.
type GenericShare struct {
	Day     datekey.Day
	Image   *comic.Blob
	Subject string
}

func (GenericShare) Target() ShareTarget { return ShareOther }
func (GenericShare) sharePayload()       {}

// ParseShareTarget maps a target name to a ShareTarget; anything but "mail"
// is a generic target.
func ParseShareTarget(s string) ShareTarget {
	if ShareTarget(s) == ShareMail {
		return ShareMail
	}
	return ShareOther
}
