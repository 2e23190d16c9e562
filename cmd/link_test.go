package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	domainncr "ncrflow/internal/domain/ncr"
)

func TestLinkResolveCollapsesUnknownAndExpired(t *testing.T) {
	var messages []string
	for _, resolveErr := range []error{
		fmt.Errorf("%w: magic link", domainncr.ErrNotFound),
		fmt.Errorf("%w: magic link expired at 2026-03-05T09:00:00Z", domainncr.ErrExpired),
	} {
		cmd := &cobra.Command{}
		cmd.SetContext(context.Background())
		cmd.SetOut(&bytes.Buffer{})

		err := resolveLink(cmd, &stubNCRService{portalErr: resolveErr}, "abc.def")
		if !errors.Is(err, domainncr.ErrNotFound) || errors.Is(err, domainncr.ErrExpired) {
			t.Fatalf("resolveLink(%v) error = %v, want collapsed NotFound", resolveErr, err)
		}
		if domainncr.KindOf(err) != domainncr.KindNotFound {
			t.Fatalf("KindOf() = %s, want %s", domainncr.KindOf(err), domainncr.KindNotFound)
		}
		messages = append(messages, err.Error())
	}
	if messages[0] != messages[1] || !strings.Contains(messages[0], portalLinkMessage) {
		t.Fatalf("messages = %q, want identical link message", messages)
	}
}

func TestLinkResolveKeepsOtherErrors(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	boom := errors.New("database is locked")
	if err := resolveLink(cmd, &stubNCRService{portalErr: boom}, "abc.def"); !errors.Is(err, boom) {
		t.Fatalf("resolveLink() error = %v, want %v", err, boom)
	}
}

func TestLinkResolveWritesView(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetOut(&out)

	if err := resolveLink(cmd, &stubNCRService{}, "abc.def"); err != nil {
		t.Fatalf("resolveLink() error = %v", err)
	}
	if !strings.Contains(out.String(), `"ncr-1"`) {
		t.Fatalf("output = %s", out.String())
	}
}
