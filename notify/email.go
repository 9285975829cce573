// Package notify mails a summary of every finished run.
package notify

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/warp/npl-provision/config"
	"github.com/warp/npl-provision/export"
	"github.com/warp/npl-provision/provision"
)

// Sender mails run results over SMTP. It implements provision.Observer.
type Sender struct {
	cfg    config.NotifyConfig
	logger logrus.FieldLogger

	// send delivers the message; replaced in tests.
	send func(e *email.Email) error
}

var _ provision.Observer = (*Sender)(nil)

// NewSender creates a new email sender
func NewSender(cfg config.NotifyConfig, logger logrus.FieldLogger) *Sender {
	s := &Sender{cfg: cfg, logger: logger}
	s.send = func(e *email.Email) error {
		addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)
		var auth smtp.Auth
		if cfg.Username != "" {
			auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.SMTPHost)
		}
		return e.Send(addr, auth)
	}
	return s
}

func (s *Sender) StageDone(provision.RunID, string) {}

// RunFinished mails the outcome. A successful run carries the CAP by
// category report as a CSV attachment. Delivery errors are logged only.
func (s *Sender) RunFinished(run provision.Run, res *provision.PeriodResult, err error) {
	msg, buildErr := s.Build(run, res, err)
	if buildErr != nil {
		s.logger.Errorf("Failed to build notification for run %s: %v", run.ID, buildErr)
		return
	}
	if sendErr := s.send(msg); sendErr != nil {
		s.logger.Errorf("Failed to send notification for run %s: %v", run.ID, sendErr)
		return
	}
	s.logger.Infof("Email sent to %s: %s", strings.Join(msg.To, ", "), msg.Subject)
}

// Build composes the message for a finished run.
func (s *Sender) Build(run provision.Run, res *provision.PeriodResult, runErr error) (*email.Email, error) {
	e := email.NewEmail()
	e.From = s.cfg.From
	e.To = s.cfg.To

	var body strings.Builder
	fmt.Fprintf(&body, "Portfolio: %s\nPeriod:    %s\nRun:       %s\nStatus:    %s\n\n",
		run.Portfolio, run.Period, run.ID, run.Status)

	if runErr != nil {
		e.Subject = fmt.Sprintf("[NPL] %s %s provisioning FAILED", strings.ToUpper(run.Portfolio), run.Period)
		fmt.Fprintf(&body, "The period was not published.\n\nError: %v\n", runErr)
		if provision.IsDataAnomaly(runErr) {
			body.WriteString("\nThis is a data anomaly: correct the feed files and rerun the period.\n")
		}
		e.Text = []byte(body.String())
		return e, nil
	}

	e.Subject = fmt.Sprintf("[NPL] %s %s provisioning completed", strings.ToUpper(run.Portfolio), run.Period)
	fmt.Fprintf(&body, "Accounts:   %d (%d classified, %d excluded, %d uncapped)\n",
		run.Accounts, run.Classified, run.Excluded, run.Uncapped)
	fmt.Fprintf(&body, "RECRATE:    %s\n", run.RecRate.StringFixed(2))
	fmt.Fprintf(&body, "RATE_A/B/C: %s / %s / %s\n",
		run.Rates.RateA.StringFixed(2), run.Rates.RateB.StringFixed(2), run.Rates.RateC.StringFixed(2))
	fmt.Fprintf(&body, "Total CAP:  %s\n", run.TotalCap.StringFixed(2))
	e.Text = []byte(body.String())

	if res != nil && len(res.Report) > 0 {
		var buf bytes.Buffer
		if err := export.WriteReportCSV(&buf, res.Report); err != nil {
			return nil, err
		}
		name := fmt.Sprintf("%s-CAPCATE-%s.csv", run.Portfolio, run.Period)
		if _, err := e.Attach(&buf, name, "text/csv"); err != nil {
			return nil, err
		}
	}
	return e, nil
}
