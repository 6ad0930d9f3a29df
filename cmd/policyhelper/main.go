// Command policyhelper drives a file-backed policy ledger from the shell.
// Gateway key material and ledger state live as JSON files in the state
// directory, so every invocation restores, mutates, and saves.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	scorevault "github.com/scorevault/ledger-go"
	"github.com/scorevault/ledger-go/oracle"
)

const defaultContextID = "insurance-v1"

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fatal("usage: policyhelper <init|create|reveal|premium|list|show> [args]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "init":
		initState()
	case "create":
		if len(os.Args) < 6 {
			fatal("usage: policyhelper create <policyID> <score> <basePremium> <publicFactor> [vehicleInfo] [submitter]")
		}
		create(ctx, os.Args[2:])
	case "reveal":
		if len(os.Args) < 3 {
			fatal("usage: policyhelper reveal <policyID>")
		}
		reveal(ctx, os.Args[2])
	case "premium":
		if len(os.Args) < 3 {
			fatal("usage: policyhelper premium <policyID>")
		}
		premium(os.Args[2])
	case "list":
		list()
	case "show":
		if len(os.Args) < 3 {
			fatal("usage: policyhelper show <policyID>")
		}
		show(os.Args[2])
	default:
		fatal("unknown command: %s", os.Args[1])
	}
}

func stateDir() string {
	if dir := os.Getenv("SCOREVAULT_STATE_DIR"); dir != "" {
		return dir
	}
	return "."
}

func gatewayPath() string { return filepath.Join(stateDir(), "gateway.json") }
func ledgerPath() string  { return filepath.Join(stateDir(), "ledger.json") }

func contextID() string {
	if id := os.Getenv("SCOREVAULT_CONTEXT"); id != "" {
		return id
	}
	return defaultContextID
}

func logger() zerolog.Logger {
	level := zerolog.WarnLevel
	if raw := os.Getenv("SCOREVAULT_LOG_LEVEL"); raw != "" {
		if parsed, err := zerolog.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func initState() {
	if _, err := os.Stat(gatewayPath()); err == nil {
		fatal("state already initialized at %s", gatewayPath())
	}

	gw, err := oracle.NewGateway(contextID())
	if err != nil {
		fatal("create gateway: %v", err)
	}
	if err := gw.ExportToFile(gatewayPath()); err != nil {
		fatal("save gateway: %v", err)
	}

	ledger, err := scorevault.New(gw)
	if err != nil {
		fatal("create ledger: %v", err)
	}
	if err := ledger.ExportToFile(ledgerPath()); err != nil {
		fatal("save ledger: %v", err)
	}

	printJSON(map[string]string{"context": gw.ContextID(), "stateDir": stateDir()})
}

func loadState() (*oracle.Gateway, *scorevault.Ledger) {
	gw, err := oracle.FromFile(gatewayPath())
	if err != nil {
		fatal("load gateway (run 'policyhelper init' first): %v", err)
	}

	ledger, err := scorevault.ImportLedgerFromFile(gw, ledgerPath(), scorevault.WithLogger(logger()))
	if err != nil {
		fatal("load ledger: %v", err)
	}

	return gw, ledger
}

func saveState(gw *oracle.Gateway, ledger *scorevault.Ledger) {
	if err := gw.ExportToFile(gatewayPath()); err != nil {
		fatal("save gateway: %v", err)
	}
	if err := ledger.ExportToFile(ledgerPath()); err != nil {
		fatal("save ledger: %v", err)
	}
}

func create(ctx context.Context, args []string) {
	score, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fatal("invalid score %q: %v", args[1], err)
	}
	base, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		fatal("invalid basePremium %q: %v", args[2], err)
	}
	factor, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		fatal("invalid publicFactor %q: %v", args[3], err)
	}

	vehicleInfo := "unspecified"
	if len(args) > 4 {
		vehicleInfo = args[4]
	}
	submitter := "policyhelper"
	if len(args) > 5 {
		submitter = args[5]
	}

	gw, ledger := loadState()
	defer ledger.Close()

	orch, err := scorevault.NewOrchestrator(ledger, gw, gw.ContextID())
	if err != nil {
		fatal("create orchestrator: %v", err)
	}

	err = orch.SubmitPolicy(ctx, scorevault.SubmitPolicyParams{
		PolicyID:     args[0],
		Score:        score,
		BasePremium:  base,
		PublicFactor: factor,
		VehicleInfo:  vehicleInfo,
		Submitter:    submitter,
	})
	if err != nil {
		fatal("submit policy: %v", err)
	}

	saveState(gw, ledger)
	printJSON(map[string]string{"policyId": args[0], "status": "created"})
}

func reveal(ctx context.Context, policyID string) {
	gw, ledger := loadState()
	defer ledger.Close()

	orch, err := scorevault.NewOrchestrator(ledger, gw, gw.ContextID())
	if err != nil {
		fatal("create orchestrator: %v", err)
	}

	if err := orch.RevealScore(ctx, policyID); err != nil {
		fatal("reveal score: %v", err)
	}

	details, err := ledger.PolicyDetails(policyID)
	if err != nil {
		fatal("read policy: %v", err)
	}

	saveState(gw, ledger)
	printJSON(map[string]any{"policyId": policyID, "score": details.DecryptedScore})
}

func premium(policyID string) {
	_, ledger := loadState()
	defer ledger.Close()

	amount, err := ledger.CalculatePremium(policyID)
	if err != nil {
		fatal("calculate premium: %v", err)
	}

	printJSON(map[string]any{"policyId": policyID, "premium": amount})
}

func list() {
	_, ledger := loadState()
	defer ledger.Close()

	printJSON(map[string]any{"policies": ledger.PolicyIDs()})
}

func show(policyID string) {
	_, ledger := loadState()
	defer ledger.Close()

	details, err := ledger.PolicyDetails(policyID)
	if err != nil {
		fatal("read policy: %v", err)
	}

	printJSON(details)
}

func printJSON(v any) {
	if err := json.NewEncoder(os.Stdout).Encode(v); err != nil {
		fatal("encode output: %v", err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
