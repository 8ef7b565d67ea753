package models

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// LoanEvent is produced when a book is borrowed.
type LoanEvent struct {
	LoanID    int64
	UserID    int64
	UserName  string
	BookID    int64
	BookTitle string
	LoanDate  time.Time
	DueDate   time.Time
}

func (e LoanEvent) Detail() string {
	return fmt.Sprintf("Loan #%d: borrowed %s, due %s",
		e.LoanID, e.LoanDate.Format(dateLayout), e.DueDate.Format(dateLayout))
}

// ReturnEvent is produced when a borrowed book comes back.
type ReturnEvent struct {
	LoanID     int64
	UserID     int64
	UserName   string
	BookID     int64
	BookTitle  string
	ReturnDate time.Time
	Overdue    bool
}

func (e ReturnEvent) Detail() string {
	status := "on time"
	if e.Overdue {
		status = "overdue"
	}
	return fmt.Sprintf("Loan #%d: returned %s (%s)", e.LoanID, e.ReturnDate.Format(dateLayout), status)
}

// FinePaymentEvent is produced when a user pays a fine.
type FinePaymentEvent struct {
	FineID    int64
	UserID    int64
	UserName  string
	BookID    int64
	BookTitle string
	// Amount in cents.
	Amount int64
	PaidAt time.Time
}

func (e FinePaymentEvent) Detail() string {
	sign, cents := "", e.Amount
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return fmt.Sprintf("Fine #%d: paid %s%d.%02d on %s",
		e.FineID, sign, cents/100, cents%100, e.PaidAt.Format(dateLayout))
}

// LoanModificationEvent is produced when the due date of a loan changes.
type LoanModificationEvent struct {
	LoanID     int64
	UserID     int64
	UserName   string
	BookID     int64
	BookTitle  string
	OldDueDate time.Time
	NewDueDate time.Time
	Reason     string
}

func (e LoanModificationEvent) Detail() string {
	detail := fmt.Sprintf("Loan #%d: due date changed from %s to %s",
		e.LoanID, e.OldDueDate.Format(dateLayout), e.NewDueDate.Format(dateLayout))
	if e.Reason != "" {
		detail += " (" + e.Reason + ")"
	}
	return detail
}
