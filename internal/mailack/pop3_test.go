package mailack

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crlf(s string) string { return strings.ReplaceAll(s, "\n", "\r\n") }

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		subject string
		body    string
		hasText bool
	}{
		{
			name: "plain single part",
			raw: crlf(`From: shop@example.com
Subject: Update completed
Content-Type: text/plain; charset=utf-8

20240101-000000.tsv
`),
			subject: "Update completed",
			body:    "20240101-000000.tsv",
			hasText: true,
		},
		{
			name: "no content type",
			raw: crlf(`Subject: done

a.tsv`),
			subject: "done",
			body:    "a.tsv",
			hasText: true,
		},
		{
			name: "encoded subject",
			raw: crlf(`Subject: =?UTF-8?B?5pu05paw5a6M5LqG?=
Content-Type: text/plain; charset=utf-8

b.tsv`),
			subject: "更新完了",
			body:    "b.tsv",
			hasText: true,
		},
		{
			name: "multipart alternative",
			raw: crlf(`Subject: done
MIME-Version: 1.0
Content-Type: multipart/alternative; boundary=XYZ

--XYZ
Content-Type: text/html; charset=utf-8

<p>c.tsv</p>
--XYZ
Content-Type: text/plain; charset=utf-8

c.tsv
--XYZ--
`),
			subject: "done",
			body:    "c.tsv",
			hasText: true,
		},
		{
			name: "html only",
			raw: crlf(`Subject: done
Content-Type: text/html; charset=utf-8

<p>d.tsv</p>`),
			subject: "done",
			hasText: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := parseMessage(strings.NewReader(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.subject, msg.Subject)
			assert.Equal(t, tt.hasText, msg.HasText)
			if tt.hasText {
				assert.Equal(t, tt.body, strings.TrimSpace(msg.Body))
			}
		})
	}
}
