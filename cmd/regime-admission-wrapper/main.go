// Command regime-admission-wrapper enforces admission to kernel evaluation
// for a declared regime. It does not determine correctness, does not
// authorize action, and does not validate domain truth — it only decides
// whether a request is even shaped well enough to reach the kernel stub
// (SPEC_FULL.md §10).
package main

import (
	"encoding/json"
	"fmt"
	"os"
)

var regimeEnum = map[string]bool{
	"SETTLEMENT_RAILS_INCIDENT": true,
	"STABLECOIN_PEG_EVENT":      true,
	"BANK_LIQUIDITY_EVENT":      true,
}

type result struct {
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Provenance string `json:"provenance"`
}

func refuse(reason string) result {
	fmt.Printf("WRAPPER_REFUSE:%s\n", reason)
	return result{Status: "REFUSE", Reason: reason, Provenance: "WRAPPER"}
}

func invokeKernelStub() result {
	fmt.Println("KERNEL_INVOKE_ATTEMPT")
	return result{Status: "REFUSE", Reason: "KERNEL_STUB", Provenance: "KERNEL"}
}

// loadJSON treats arg as a path if it exists on disk, and as a literal JSON
// document otherwise — the same dual-mode argument convention the harness
// CLI uses for its own inputs.
func loadJSON(arg string) (any, error) {
	if b, err := os.ReadFile(arg); err == nil {
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	var v any
	if err := json.Unmarshal([]byte(arg), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func stringField(m map[string]any, key, fallback string) string {
	v, ok := m[key]
	if !ok {
		return fallback
	}
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	return s
}

func run(args []string) int {
	if len(args) < 3 {
		emit(refuse("REGIME_MISSING"))
		return 0
	}

	regimeRaw, err := loadJSON(args[1])
	if err != nil {
		emit(refuse("REGIME_UNKNOWN"))
		return 0
	}
	if _, err := loadJSON(args[2]); err != nil {
		emit(refuse("REGIME_UNKNOWN"))
		return 0
	}

	if regimeRaw == nil {
		emit(refuse("REGIME_MISSING"))
		return 0
	}
	regime, ok := regimeRaw.(map[string]any)
	if !ok {
		emit(refuse("REGIME_UNKNOWN"))
		return 0
	}

	regimeStatus := stringField(regime, "regime_status", "UNKNOWN")
	regimeID := stringField(regime, "regime_id", "UNKNOWN")
	entryMode := stringField(regime, "entry_mode", "UNKNOWN")

	if regimeStatus != "REGIME_DECLARED" {
		reason := "REGIME_UNKNOWN"
		if regimeStatus == "REGIME_NOT_DECLARED" {
			reason = "REGIME_MISSING"
		}
		emit(refuse(reason))
		return 0
	}

	if entryMode != "OPERATOR_ASSERTED" || !regimeEnum[regimeID] {
		emit(refuse("REGIME_UNKNOWN"))
		return 0
	}

	emit(invokeKernelStub())
	return 0
}

func emit(r result) {
	b, err := json.Marshal(r)
	if err != nil {
		return
	}
	fmt.Println(string(b))
}

func main() {
	os.Exit(run(os.Args))
}
