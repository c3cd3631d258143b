package config

import (
	"testing"
	"time"

	"github.com/gitddb/gitddb/internal/ddberrors"
	"github.com/gitddb/gitddb/internal/docmodel"
)

func wantKind(t *testing.T, err error, kind ddberrors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected an error with Kind %v, got nil", kind)
	}
	if got, ok := ddberrors.KindOf(err); !ok || got != kind {
		t.Errorf("error Kind = %v (ok=%v), want %v", got, ok, kind)
	}
}

func TestValidateRequiresDbName(t *testing.T) {
	_, err := Validate(&Options{})
	wantKind(t, err, ddberrors.KindUndefinedDocumentId)
}

func TestValidateDefaultsSerializeToJSON(t *testing.T) {
	opts, err := Validate(&Options{DbName: "db"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if opts.Serialize != SerializeJSON {
		t.Errorf("Serialize = %v, want SerializeJSON", opts.Serialize)
	}
}

func TestValidateLocalOnlySkipsSyncChecks(t *testing.T) {
	opts, err := Validate(&Options{DbName: "db"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if opts.Sync != nil {
		t.Errorf("Sync should remain nil for a local-only database")
	}
}

func TestValidateRequiresRemoteURL(t *testing.T) {
	_, err := Validate(&Options{DbName: "db", Sync: &SyncOptions{}})
	wantKind(t, err, ddberrors.KindUndefinedRemoteURL)
}

func TestValidateRejectsUnsupportedTransport(t *testing.T) {
	_, err := Validate(&Options{DbName: "db", Sync: &SyncOptions{RemoteURL: "ftp://example.com/repo"}})
	wantKind(t, err, ddberrors.KindHttpProtocolRequired)
}

func TestValidateRequiresTokenForPlainHTTP(t *testing.T) {
	_, err := Validate(&Options{DbName: "db", Sync: &SyncOptions{RemoteURL: "http://example.com/repo.git"}})
	wantKind(t, err, ddberrors.KindUndefinedAccessToken)
}

func TestValidateAllowsHTTPSWithoutToken(t *testing.T) {
	opts, err := Validate(&Options{DbName: "db", Sync: &SyncOptions{RemoteURL: "https://example.com/repo.git"}})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if opts.Sync.Direction != SyncDirectionBoth {
		t.Errorf("Direction should default to both, got %v", opts.Sync.Direction)
	}
}

func TestValidateAllowsSSHWithoutToken(t *testing.T) {
	_, err := Validate(&Options{DbName: "db", Sync: &SyncOptions{RemoteURL: "git@example.com:org/repo.git"}})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateLiveIntervalMustMeetMinimum(t *testing.T) {
	_, err := Validate(&Options{DbName: "db", Sync: &SyncOptions{
		RemoteURL: "https://example.com/repo.git",
		Live:      true,
		Interval:  100 * time.Millisecond,
	}})
	wantKind(t, err, ddberrors.KindIntervalTooSmall)
}

func TestValidateRetryIntervalMustBeLessThanInterval(t *testing.T) {
	_, err := Validate(&Options{DbName: "db", Sync: &SyncOptions{
		RemoteURL:     "https://example.com/repo.git",
		Live:          true,
		Interval:      2 * time.Second,
		RetryInterval: 2 * time.Second,
	}})
	wantKind(t, err, ddberrors.KindSyncIntervalLessThanOrEqualToRetryInterval)
}

func TestValidateDefaultsRetryAndStrategies(t *testing.T) {
	opts, err := Validate(&Options{DbName: "db", Sync: &SyncOptions{RemoteURL: "https://example.com/repo.git"}})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if opts.Sync.Retry != DefaultRetry {
		t.Errorf("Retry = %d, want default %d", opts.Sync.Retry, DefaultRetry)
	}
	if opts.Sync.ConflictResolutionStrategy != docmodel.StrategyOursProp {
		t.Errorf("ConflictResolutionStrategy = %v, want default StrategyOursProp", opts.Sync.ConflictResolutionStrategy)
	}
	if opts.Sync.CombineDbStrategy != CombineHeadWithTheirs {
		t.Errorf("CombineDbStrategy = %v, want default CombineHeadWithTheirs", opts.Sync.CombineDbStrategy)
	}
}

func TestNewViperBindsEnvPrefix(t *testing.T) {
	t.Setenv("GITDDB_DBNAME", "from-env")
	v, err := NewViper(t.TempDir())
	if err != nil {
		t.Fatalf("NewViper: %v", err)
	}
	if got := v.GetString("dbname"); got != "from-env" {
		t.Errorf("dbname = %q, want %q", got, "from-env")
	}
}
