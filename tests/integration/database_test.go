// Package integration contains integration tests for the Morpho lending terminal.
//
// Database Integration Tests
// These tests verify repository behavior against a real PostgreSQL instance:
// upserts, conflict handling, phase journaling and default-wallet switching.
package integration

import (
	"errors"
	"testing"
	"time"

	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/models"
	"github.com/cp0x-org/pi-morpho-interface-sub000/internal/repository"
)

// ============================================================
// MarketRepository Integration Tests
// ============================================================

func TestMarketRepository_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		t.Skip("Skipping: database not available")
	}
	defer cleanup()

	if err := initTestTables(db); err != nil {
		t.Skipf("Skipping: cannot initialize tables: %v", err)
	}
	if err := truncateTables(db); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	repo := repository.NewMarketRepository(db)
	markets, _ := testCatalogData()

	t.Run("upsert assigns id", func(t *testing.T) {
		row := markets[0]
		if err := repo.Upsert(&row); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
		if row.ID == 0 {
			t.Error("Upsert must assign an id")
		}
	})

	t.Run("upsert on conflict updates rates", func(t *testing.T) {
		row := markets[0]
		row.SupplyAPY = 0.099
		row.UpdatedAt = time.Now()
		if err := repo.Upsert(&row); err != nil {
			t.Fatalf("Upsert: %v", err)
		}

		stored, err := repo.GetByKey(row.UniqueKey)
		if err != nil {
			t.Fatalf("GetByKey: %v", err)
		}
		if stored.SupplyAPY != 0.099 {
			t.Errorf("supply apy = %v, want 0.099", stored.SupplyAPY)
		}

		all, err := repo.GetAll()
		if err != nil {
			t.Fatalf("GetAll: %v", err)
		}
		if len(all) != 1 {
			t.Errorf("conflict upsert must not create a second row, got %d", len(all))
		}
	})

	t.Run("get unknown key returns ErrMarketNotFound", func(t *testing.T) {
		if _, err := repo.GetByKey("0xmissing"); !errors.Is(err, repository.ErrMarketNotFound) {
			t.Errorf("err = %v, want ErrMarketNotFound", err)
		}
	})
}

// ============================================================
// TxRepository Integration Tests
// ============================================================

func TestTxRepository_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		t.Skip("Skipping: database not available")
	}
	defer cleanup()

	if err := initTestTables(db); err != nil {
		t.Skipf("Skipping: cannot initialize tables: %v", err)
	}
	if err := truncateTables(db); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	repo := repository.NewTxRepository(db)
	const user = "0x00000000000000000000000000000000000C0ffe"

	record := &models.TxRecord{
		User:      user,
		MarketKey: "0xaaaa",
		Action:    models.ActionSupply,
		Assets:    "1000000000000000000",
		Shares:    "",
		Phase:     models.PhaseIdle,
	}

	t.Run("create assigns id and timestamp", func(t *testing.T) {
		if err := repo.Create(record); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if record.ID == 0 {
			t.Error("Create must assign an id")
		}
		if record.CreatedAt.IsZero() {
			t.Error("Create must set created_at")
		}
	})

	t.Run("update phase journals hash and error", func(t *testing.T) {
		if err := repo.UpdatePhase(record.ID, models.PhaseActing, "0xhash", ""); err != nil {
			t.Fatalf("UpdatePhase: %v", err)
		}

		stored, err := repo.GetByID(record.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if stored.Phase != models.PhaseActing {
			t.Errorf("phase = %s, want %s", stored.Phase, models.PhaseActing)
		}
		if stored.TxHash != "0xhash" {
			t.Errorf("tx hash = %s, want 0xhash", stored.TxHash)
		}
		if stored.UpdatedAt == nil {
			t.Error("UpdatePhase must set updated_at")
		}
	})

	t.Run("pending returns only in-flight phases", func(t *testing.T) {
		confirmed := &models.TxRecord{
			User: user, MarketKey: "0xaaaa", Action: models.ActionRepay,
			Assets: "5", Phase: models.PhaseConfirmed,
		}
		if err := repo.Create(confirmed); err != nil {
			t.Fatalf("Create: %v", err)
		}

		pending, err := repo.GetPending()
		if err != nil {
			t.Fatalf("GetPending: %v", err)
		}
		for _, p := range pending {
			if p.Phase != models.PhaseApproving && p.Phase != models.PhaseActing {
				t.Errorf("pending contains terminal phase %s", p.Phase)
			}
		}
		if len(pending) != 1 {
			t.Errorf("expected 1 pending record, got %d", len(pending))
		}
	})

	t.Run("history is scoped to user", func(t *testing.T) {
		other := &models.TxRecord{
			User: "0x0000000000000000000000000000000000000bad", MarketKey: "0xbbbb",
			Action: models.ActionBorrow, Assets: "7", Phase: models.PhaseConfirmed,
		}
		if err := repo.Create(other); err != nil {
			t.Fatalf("Create: %v", err)
		}

		history, err := repo.GetByUser(user, 50)
		if err != nil {
			t.Fatalf("GetByUser: %v", err)
		}
		if len(history) != 2 {
			t.Fatalf("expected 2 records for user, got %d", len(history))
		}
		for _, h := range history {
			if h.User != user {
				t.Errorf("history leaked record of %s", h.User)
			}
		}
	})

	t.Run("update of missing record returns ErrTxNotFound", func(t *testing.T) {
		err := repo.UpdatePhase(999999, models.PhaseFailed, "", "boom")
		if !errors.Is(err, repository.ErrTxNotFound) {
			t.Errorf("err = %v, want ErrTxNotFound", err)
		}
	})
}

// ============================================================
// WalletRepository Integration Tests
// ============================================================

func TestWalletRepository_Integration(t *testing.T) {
	db, cleanup := SetupTestDB(t)
	if db == nil {
		t.Skip("Skipping: database not available")
	}
	defer cleanup()

	if err := initTestTables(db); err != nil {
		t.Skipf("Skipping: cannot initialize tables: %v", err)
	}
	if err := truncateTables(db); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	repo := repository.NewWalletRepository(db)

	first := &models.WalletRecord{
		Address:      "0x1111111111111111111111111111111111111111",
		Label:        "first",
		EncryptedKey: "ciphertext-a",
	}
	second := &models.WalletRecord{
		Address:      "0x2222222222222222222222222222222222222222",
		Label:        "second",
		EncryptedKey: "ciphertext-b",
	}

	t.Run("create and read back", func(t *testing.T) {
		if err := repo.Create(first); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if err := repo.Create(second); err != nil {
			t.Fatalf("Create: %v", err)
		}

		stored, err := repo.GetByAddress(first.Address)
		if err != nil {
			t.Fatalf("GetByAddress: %v", err)
		}
		if stored.EncryptedKey != "ciphertext-a" {
			t.Errorf("encrypted key = %q, want ciphertext-a", stored.EncryptedKey)
		}
	})

	t.Run("no default until assigned", func(t *testing.T) {
		if _, err := repo.GetDefault(); !errors.Is(err, repository.ErrWalletNotFound) {
			t.Errorf("err = %v, want ErrWalletNotFound", err)
		}
	})

	t.Run("set default switches exclusively", func(t *testing.T) {
		if err := repo.SetDefault(first.Address); err != nil {
			t.Fatalf("SetDefault: %v", err)
		}
		if err := repo.SetDefault(second.Address); err != nil {
			t.Fatalf("SetDefault: %v", err)
		}

		def, err := repo.GetDefault()
		if err != nil {
			t.Fatalf("GetDefault: %v", err)
		}
		if def.Address != second.Address {
			t.Errorf("default = %s, want %s", def.Address, second.Address)
		}

		old, err := repo.GetByAddress(first.Address)
		if err != nil {
			t.Fatalf("GetByAddress: %v", err)
		}
		if old.IsDefault {
			t.Error("previous default must be cleared")
		}
	})

	t.Run("set default for unknown address fails", func(t *testing.T) {
		err := repo.SetDefault("0x3333333333333333333333333333333333333333")
		if !errors.Is(err, repository.ErrWalletNotFound) {
			t.Errorf("err = %v, want ErrWalletNotFound", err)
		}
	})
}
