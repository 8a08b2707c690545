// Package ses delivers envelopes through the AWS SES v2 API.
package ses

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/mailguard/internal/config"
	"github.com/ignite/mailguard/internal/pkg/logger"
	"github.com/ignite/mailguard/internal/service/sending"
)

// API is the subset of the SES client used here.
type API interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Transport implements sending.Transport over SES raw messages so the
// correlation header reaches the recipient unchanged.
type Transport struct {
	client      API
	defaultFrom string
	now         func() time.Time
}

// New creates an SES transport from config. Static credentials are used
// when both keys are set, otherwise the default AWS chain.
func New(ctx context.Context, cfg config.SESConfig) (*Transport, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewWithClient(sesv2.NewFromConfig(awsCfg), cfg.FromAddress), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, defaultFrom string) *Transport {
	return &Transport{client: client, defaultFrom: defaultFrom, now: time.Now}
}

// Send delivers env and returns the SES message id.
func (t *Transport) Send(ctx context.Context, env *sending.Envelope) (string, error) {
	from := env.From
	if from == "" {
		from = t.defaultFrom
	}
	if from == "" {
		return "", fmt.Errorf("ses: no sender address")
	}

	raw, err := t.buildRaw(from, env)
	if err != nil {
		return "", fmt.Errorf("ses: build message: %w", err)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{env.To}},
		Content:          &types.EmailContent{Raw: &types.RawMessage{Data: raw}},
	}
	if id := env.MessageID(); id != "" {
		input.EmailTags = []types.MessageTag{
			{Name: aws.String("correlation_id"), Value: aws.String(tagValue(id))},
		}
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return "", fmt.Errorf("ses send: %w", err)
	}

	providerID := aws.ToString(out.MessageId)
	logger.Info("ses message sent", "recipient", env.To, "provider_id", providerID)
	return providerID, nil
}

// buildRaw renders env as a MIME message. Text and HTML go into a
// multipart/alternative body when both are set.
func (t *Transport) buildRaw(from string, env *sending.Envelope) ([]byte, error) {
	var buf bytes.Buffer
	writeHeader := func(k, v string) {
		fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
	}

	writeHeader("From", from)
	writeHeader("To", env.To)
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", env.Subject))
	writeHeader("Date", t.now().UTC().Format(time.RFC1123Z))
	writeHeader("MIME-Version", "1.0")

	keys := make([]string, 0, len(env.Headers))
	for k := range env.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		// header injection
		v := strings.NewReplacer("\r", "", "\n", "").Replace(env.Headers[k])
		writeHeader(textproto.CanonicalMIMEHeaderKey(k), v)
	}

	switch {
	case env.Text != "" && env.HTML != "":
		mw := multipart.NewWriter(&buf)
		writeHeader("Content-Type", "multipart/alternative; boundary="+mw.Boundary())
		buf.WriteString("\r\n")
		for _, part := range []struct{ ctype, body string }{
			{"text/plain; charset=UTF-8", env.Text},
			{"text/html; charset=UTF-8", env.HTML},
		} {
			w, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {part.ctype}})
			if err != nil {
				return nil, err
			}
			if _, err := w.Write([]byte(part.body)); err != nil {
				return nil, err
			}
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
	case env.HTML != "":
		writeHeader("Content-Type", "text/html; charset=UTF-8")
		buf.WriteString("\r\n")
		buf.WriteString(env.HTML)
	default:
		writeHeader("Content-Type", "text/plain; charset=UTF-8")
		buf.WriteString("\r\n")
		buf.WriteString(env.Text)
	}
	return buf.Bytes(), nil
}

// tagValue keeps only characters SES accepts in tag values.
func tagValue(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, s)
}

var _ sending.Transport = (*Transport)(nil)
