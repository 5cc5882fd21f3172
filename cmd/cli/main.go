package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/plcoste/syndic/internal/fiscal"
	"github.com/plcoste/syndic/internal/logger"
)

func main() {
	log := logger.New("cli")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "situation":
		runSituation(log)
	case "upload":
		runUpload(log)
	case "close":
		runClose(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Syndic CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  situation  Print the per-owner balance report for a building and year")
	fmt.Println("  upload     Upload a bank statement CSV for import")
	fmt.Println("  close      Close a fiscal exercise")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func runSituation(log zerolog.Logger) {
	fs := flag.NewFlagSet("situation", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://localhost:8080", "Base URL of the API server")
	buildingID := fs.String("building", "", "Building ID")
	year := fs.Int("year", time.Now().Year(), "Fiscal year")
	fs.Parse(os.Args[2:])

	if *buildingID == "" {
		log.Fatal().Msg("Error: --building is required")
	}

	url := fmt.Sprintf("%s/api/buildings/%s/situation?year=%d", *apiURL, *buildingID, *year)
	var sit fiscal.Situation
	if err := getJSON(url, &sit); err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch situation")
	}

	fmt.Printf("Building %s, exercise %d (%s)\n\n", sit.BuildingID, sit.Year, sit.Status)
	fmt.Printf("%-30s %7s %12s %12s %12s %12s %12s\n",
		"Owner", "Shares", "Opening", "Charges", "Fees", "Deposits", "Closing")
	for _, o := range sit.Owners {
		fmt.Printf("%-30s %7d %12s %12s %12s %12s %12s\n",
			o.OwnerName,
			o.Shares,
			eur(o.OpeningBalance),
			eur(o.ChargesAllocated),
			eur(o.FeesAllocated),
			eur(o.DepositsAttributed),
			eur(o.ClosingBalance),
		)
	}
	fmt.Printf("\nTotal charges:          %s\n", eur(sit.TotalCharges))
	fmt.Printf("Total fees:             %s\n", eur(sit.TotalFees))
	fmt.Printf("Total deposits:         %s\n", eur(sit.TotalDeposits))
	if !sit.UnattributedDeposits.IsZero() {
		fmt.Printf("Unattributed deposits:  %s\n", eur(sit.UnattributedDeposits))
	}
	if !sit.Residual.IsZero() {
		fmt.Printf("Rounding residual:      %s\n", eur(sit.Residual))
	}
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://localhost:8080", "Base URL of the API server")
	buildingID := fs.String("building", "", "Building ID")
	filePath := fs.String("file", "", "Path to the statement CSV file")
	fs.Parse(os.Args[2:])

	if *buildingID == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -building ID -file PATH")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read statement file")
	}

	url := fmt.Sprintf("%s/api/buildings/%s/statements", *apiURL, *buildingID)
	resp, err := http.Post(url, "text/csv", bytes.NewReader(data))
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusAccepted {
		log.Fatal().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Upload rejected")
	}

	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		log.Fatal().Err(err).Msg("Unexpected response")
	}
	fmt.Printf("Statement accepted, import job %s\n", out.JobID)
}

func runClose(log zerolog.Logger) {
	fs := flag.NewFlagSet("close", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://localhost:8080", "Base URL of the API server")
	exerciseID := fs.String("exercise", "", "Exercise ID to close")
	year := fs.Int("year", 0, "Fiscal year, used to build the confirmation phrase")
	fs.Parse(os.Args[2:])

	if *exerciseID == "" || *year == 0 {
		log.Fatal().Msg("Usage: cli close -exercise ID -year YEAR")
	}

	payload, _ := json.Marshal(map[string]string{
		"confirmation": fiscal.ConfirmationPhrase(*year),
	})

	url := fmt.Sprintf("%s/api/exercises/%s/close", *apiURL, *exerciseID)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Fatal().Err(err).Msg("Close request failed")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatal().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Close rejected")
	}

	fmt.Printf("Exercise %d closed.\n", *year)
}

func getJSON(url string, out interface{}) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// eur renders a decimal euro amount as a display string, e.g. "€1,234.56".
func eur(d decimal.Decimal) string {
	cents := d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return money.New(cents, money.EUR).Display()
}
