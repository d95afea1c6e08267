package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"ledgerd/internal/domain"
	"ledgerd/internal/usecase"
)

// runBundleVerify checks an exported evidence bundle fully offline.
func runBundleVerify(args []string) int {
	flags := flag.NewFlagSet("bundle verify", flag.ContinueOnError)
	inPath := flags.String("in", "", "path to the evidence bundle JSON")
	asJSON := flags.Bool("json", false, "print the verification result as JSON")
	if err := flags.Parse(args); err != nil {
		return 1
	}
	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "bundle verify requires -in <evidence_bundle.json>")
		return 1
	}

	payload, err := os.ReadFile(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read bundle: %v\n", err)
		return 1
	}
	var bundle domain.EvidenceBundle
	if err := json.Unmarshal(payload, &bundle); err != nil {
		fmt.Fprintf(os.Stderr, "decode bundle: %v\n", err)
		return 1
	}

	result := usecase.VerifyBundle(context.Background(), bundle, nil)
	if *asJSON {
		encoded, err := json.Marshal(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
			return 1
		}
		fmt.Println(string(encoded))
	} else {
		status := "pass"
		if !result.OK {
			status = "fail"
		}
		fmt.Printf("status=%s anchor_id=%s members=%d\n", status, bundle.AnchorID, len(bundle.CanonicalInputs))
		if len(result.Reasons) > 0 {
			fmt.Printf("reasons=%s\n", strings.Join(result.Reasons, ","))
		}
	}
	if result.OK {
		return 0
	}
	return 1
}
