package campaign

import (
	"fmt"

	"github.com/BTreeMap/SlotPipe/internal/models"
)

// slotTimeLayout renders slot times the way they appear in outbound messages.
const slotTimeLayout = "Monday, January 2 at 3:04 PM"

func (e *Engine) openingSubject(c *models.Campaign) string {
	return fmt.Sprintf("An appointment just opened up on %s", c.SlotTime.Format("Monday, January 2"))
}

func (e *Engine) openingEmailBody(c *models.Campaign, r *models.Recipient) string {
	greeting := "Hi"
	if r.Name != "" {
		greeting = "Hi " + r.Name
	}
	return fmt.Sprintf(
		"%s,\n\nA spot just opened up at %s on %s. It's first come, first served.\n\nReply YES to this email to take it.\n\n%s",
		greeting, e.opts.BusinessName, c.SlotTime.Format(slotTimeLayout), e.opts.BusinessName,
	)
}

func (e *Engine) openingTextBody(c *models.Campaign) string {
	return fmt.Sprintf(
		"%s: a spot opened up on %s. Reply YES to take it. First come, first served.",
		e.opts.BusinessName, c.SlotTime.Format(slotTimeLayout),
	)
}

func (e *Engine) declineSubject() string {
	return "That spot has been taken"
}

// declineBody references the replier's own upcoming appointment when the
// campaign snapshot has one.
func (e *Engine) declineBody(c *models.Campaign, r *models.Recipient) string {
	base := fmt.Sprintf(
		"Sorry, the %s opening has already been claimed by another client.",
		c.SlotTime.Format(slotTimeLayout),
	)
	if r != nil && r.NextAppointment != nil {
		return fmt.Sprintf(
			"%s We'll see you at your appointment on %s.",
			base, r.NextAppointment.Format(slotTimeLayout),
		)
	}
	return base + " We'll let you know when another spot opens up."
}

func (e *Engine) confirmationSubject(c *models.Campaign) string {
	return fmt.Sprintf("You're booked for %s", c.SlotTime.Format("Monday, January 2"))
}

func (e *Engine) confirmationBody(c *models.Campaign, r *models.Recipient) string {
	greeting := "Hi"
	if r.Name != "" {
		greeting = "Hi " + r.Name
	}
	return fmt.Sprintf(
		"%s,\n\nYou got it! You're booked at %s on %s. See you then.\n\n%s",
		greeting, e.opts.BusinessName, c.SlotTime.Format(slotTimeLayout), e.opts.BusinessName,
	)
}

func (e *Engine) failureSubject() string {
	return "That spot is no longer available"
}

func (e *Engine) failureBody(c *models.Campaign) string {
	return fmt.Sprintf(
		"Sorry, the %s opening is no longer available. We were unable to complete the booking.",
		c.SlotTime.Format(slotTimeLayout),
	)
}
