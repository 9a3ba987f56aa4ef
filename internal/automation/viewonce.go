package automation

import (
	"context"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.uber.org/zap"

	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/messaging"
)

const (
	replyNotViewOnce = "❌ Kripya kisi View Once media (Photo/Video) par reply karein."
	replyNoMedia     = "❌ View Once media detect nahi hua."
)

// quotedViewOnce returns the view-once payload the message replies to.
func quotedViewOnce(msg *waE2E.Message) (*waE2E.Message, bool) {
	quoted := msg.GetExtendedTextMessage().GetContextInfo().GetQuotedMessage()
	if quoted == nil {
		return nil, false
	}
	wrappers := []*waE2E.FutureProofMessage{
		quoted.GetViewOnceMessage(),
		quoted.GetViewOnceMessageV2(),
		quoted.GetViewOnceMessageV2Extension(),
	}
	for _, w := range wrappers {
		if inner := w.GetMessage(); inner != nil {
			return inner, true
		}
	}
	// newer clients flag the media itself instead of wrapping it
	if quoted.GetImageMessage().GetViewOnce() || quoted.GetVideoMessage().GetViewOnce() {
		return quoted, true
	}
	return nil, false
}

// viewOnce re-sends the quoted view-once image or video as a normal media
// message. It returns the text reply to send, empty when none.
func (e *Engine) viewOnce(ctx context.Context, m messaging.Messenger, ev messaging.MessageUpsert) string {
	inner, ok := quotedViewOnce(ev.Message)
	if !ok {
		return replyNotViewOnce
	}

	var (
		media messaging.OutgoingMedia
		data  []byte
		err   error
	)
	switch {
	case inner.GetImageMessage() != nil:
		img := inner.GetImageMessage()
		media = messaging.OutgoingMedia{Kind: messaging.MediaImage, Mimetype: mimetypeOr(img.GetMimetype(), "image/jpeg")}
		data, err = m.Download(ctx, img)
	case inner.GetVideoMessage() != nil:
		vid := inner.GetVideoMessage()
		media = messaging.OutgoingMedia{Kind: messaging.MediaVideo, Mimetype: mimetypeOr(vid.GetMimetype(), "video/mp4")}
		data, err = m.Download(ctx, vid)
	default:
		return replyNoMedia
	}
	if err != nil {
		zap.L().Warn("automation: view once download failed", zap.String("identity", e.identity), zap.Error(err))
		return ""
	}

	media.Data = data
	media.Caption = "✅ VV Downloaded (" + string(media.Kind) + ")"
	if err := m.SendMedia(ctx, ev.Info.Chat, media); err != nil {
		zap.L().Warn("automation: view once resend failed", zap.String("identity", e.identity), zap.Error(err))
	}
	return ""
}

func mimetypeOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
