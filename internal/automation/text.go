package automation

import (
	"fmt"

	waE2E "go.mau.fi/whatsmeow/proto/waE2E"

	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/domain"
)

const menuTemplate = `
*🌟 MD Bot Commands 🌟*

🤖 *Bot Status:*
.autostatusseen %s
.autoreact %s

*Commands:*
.menu - Yeh menu dekhein.
.autostatusseen on/off - Status ko automatically dekhne ke liye.
.autoreact on/off - Incoming messages par random reactions bhejen.
.vv - Reply karen kisi View Once media (photo/video) par use download karne ke liye.
`

func menuText(s domain.SessionSettings) string {
	return fmt.Sprintf(menuTemplate, domain.OnOff(s.AutoSeen), domain.OnOff(s.AutoReact))
}

// textBody returns the plain text of a conversation or extended text message.
func textBody(msg *waE2E.Message) string {
	if conv := msg.GetConversation(); conv != "" {
		return conv
	}
	return msg.GetExtendedTextMessage().GetText()
}
