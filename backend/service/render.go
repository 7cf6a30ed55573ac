package service

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
)

// displayDate is how dates appear inside notification text.
const displayDate = "02.01.2006"

// Renderer builds notification text from entity fields.
type Renderer struct {
	printer  *message.Printer
	currency string
}

// NewRenderer creates a renderer quoting amounts in currency (KZT when empty).
func NewRenderer(currency string) *Renderer {
	if currency == "" {
		currency = "KZT"
	}
	return &Renderer{
		printer:  message.NewPrinter(language.English),
		currency: currency,
	}
}

func (r *Renderer) ContractExpiry(c *model.Contract, daysLeft int) Message {
	return Message{
		Title: "Lease contract expiring soon",
		Body: r.printer.Sprintf("Contract No. %s with client %s expires in %d days (%s)",
			c.Number, c.ClientName, daysLeft, c.EndDate.Format(displayDate)),
	}
}

func (r *Renderer) DocumentExpiry(d *model.Document, daysLeft int) Message {
	return Message{
		Title: "Document expiring soon",
		Body: r.printer.Sprintf("Document '%s' expires in %d days (%s)",
			d.Title, daysLeft, d.ExpiryDate.Format(displayDate)),
	}
}

func (r *Renderer) PaymentDue(c *model.Contract, dueDay int) Message {
	return Message{
		Title: "Rent payment reminder",
		Body: r.printer.Sprintf("Rent is due under contract No. %s with client %s. Amount: %s %s. Pay by day %d of the month.",
			c.Number, c.ClientName, r.Amount(c.RentalAmount), r.currency, dueDay),
	}
}

func (r *Renderer) ContractCreated(c *model.Contract) Message {
	return Message{
		Title: "New lease contract",
		Body: r.printer.Sprintf("Contract No. %s with client %s was created for %s (%s to %s)",
			c.Number, c.ClientName, c.PropertyAddress, c.StartDate.Format(displayDate), c.EndDate.Format(displayDate)),
	}
}

// Amount formats a money value with digit grouping and two decimals.
func (r *Renderer) Amount(v decimal.Decimal) string {
	return r.printer.Sprintf("%.2f", v.Round(2).InexactFloat64())
}
