package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Iron-Ham/finpace/internal/banksync"
	"github.com/Iron-Ham/finpace/internal/errors"
	"github.com/Iron-Ham/finpace/internal/simserver"
	"github.com/Iron-Ham/finpace/internal/store"
)

func TestPrintAccounts(t *testing.T) {
	var buf bytes.Buffer
	printAccounts(&buf, []banksync.AccountSnapshot{
		{PlaidID: "acc_1", Name: "Checking", Balance: decimal.RequireFromString("2500.5"), TransactionCount: 52, SyncedAt: time.Now()},
		{PlaidID: "acc_2", Name: "Savings", Balance: decimal.RequireFromString("-12.34"), TransactionCount: 0},
	})
	out := buf.String()

	for _, want := range []string{"acc_1", "Checking", "2500.50", "52", "acc_2", "-12.34", "never"} {
		if !strings.Contains(out, want) {
			t.Errorf("printAccounts() output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintAccountsEmpty(t *testing.T) {
	var buf bytes.Buffer
	printAccounts(&buf, nil)
	if !strings.Contains(buf.String(), "No accounts cached") {
		t.Errorf("printAccounts(nil) = %q, want the empty-cache hint", buf.String())
	}
}

func TestRefreshAccounts(t *testing.T) {
	srv := simserver.New(simserver.WithToken("secret"))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	st, err := store.Open("")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = st.Close() }()

	t.Run("bad token", func(t *testing.T) {
		err := refreshAccounts(context.Background(), banksync.NewClient(ts.URL, banksync.WithClientToken("wrong")), st)
		if !errors.Is(err, errors.ErrUnauthorized) {
			t.Fatalf("refreshAccounts() error = %v, want unauthorized", err)
		}
		if !strings.Contains(err.Error(), "api.token") {
			t.Errorf("error = %q, want a hint about api.token", err)
		}
	})

	t.Run("caches accounts", func(t *testing.T) {
		if err := refreshAccounts(context.Background(), banksync.NewClient(ts.URL, banksync.WithClientToken("secret")), st); err != nil {
			t.Fatalf("refreshAccounts() error = %v", err)
		}
		accounts, err := st.ListAccounts()
		if err != nil {
			t.Fatal(err)
		}
		if len(accounts) != simserver.DefaultAccounts {
			t.Errorf("cached %d accounts, want %d", len(accounts), simserver.DefaultAccounts)
		}
	})
}
