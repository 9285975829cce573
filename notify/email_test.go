package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/npl-provision/config"
	"github.com/warp/npl-provision/provision"
)

func newTestSender(t *testing.T) (*Sender, *[]*email.Email, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	s := NewSender(config.NotifyConfig{
		Enabled: true, SMTPHost: "mail.local", SMTPPort: 25,
		From: "npl@bank.local", To: []string{"finance@bank.local"},
	}, log)
	var sent []*email.Email
	s.send = func(e *email.Email) error {
		sent = append(sent, e)
		return nil
	}
	return s, &sent, hook
}

func run(status provision.RunStatus) provision.Run {
	return provision.Run{
		ID:        "r-1",
		Portfolio: "islamic",
		Period:    provision.Period{Year: 2025, Month: time.March},
		Status:    status,
		Accounts:  10,
		TotalCap:  decimal.RequireFromString("1234.5"),
	}
}

func TestSender_SuccessAttachesReport(t *testing.T) {
	s, sent, _ := newTestSender(t)
	res := &provision.PeriodResult{Report: []provision.TabRow{
		{Ordinal: 1, Category: "CURRENT", Branch: "002", Measures: provision.ZeroMeasures()},
	}}

	s.RunFinished(run(provision.RunSucceeded), res, nil)

	require.Len(t, *sent, 1)
	msg := (*sent)[0]
	assert.Equal(t, "[NPL] ISLAMIC 2025-03 provisioning completed", msg.Subject)
	assert.Equal(t, []string{"finance@bank.local"}, msg.To)
	assert.Contains(t, string(msg.Text), "Total CAP:  1234.50")
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "islamic-CAPCATE-2025-03.csv", msg.Attachments[0].Filename)
	assert.Contains(t, string(msg.Attachments[0].Content), "CURRENT,002")
}

func TestSender_FailureNamesDataAnomaly(t *testing.T) {
	s, sent, _ := newTestSender(t)
	err := provision.NewDataAnomaly("waterfall", "3-5 MTHS bucket is empty")

	s.RunFinished(run(provision.RunFailed), nil, err)

	require.Len(t, *sent, 1)
	msg := (*sent)[0]
	assert.Contains(t, msg.Subject, "FAILED")
	assert.Contains(t, string(msg.Text), "data anomaly")
	assert.Empty(t, msg.Attachments)
}

func TestSender_DeliveryErrorIsLogged(t *testing.T) {
	s, _, hook := newTestSender(t)
	s.send = func(*email.Email) error { return errors.New("connection refused") }

	s.RunFinished(run(provision.RunSucceeded), nil, nil)

	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "connection refused")
}
