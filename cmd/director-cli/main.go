package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/genai"

	"github.com/neoKode1/directorchair-core/internal/advisory"
	"github.com/neoKode1/directorchair-core/internal/augment"
	"github.com/neoKode1/directorchair-core/internal/auth"
	"github.com/neoKode1/directorchair-core/internal/catalog"
	"github.com/neoKode1/directorchair-core/internal/conversation"
	"github.com/neoKode1/directorchair-core/internal/director"
	"github.com/neoKode1/directorchair-core/internal/intent"
	"github.com/neoKode1/directorchair-core/internal/logging"
	"github.com/neoKode1/directorchair-core/internal/provider"
	"github.com/neoKode1/directorchair-core/internal/selection"
	"github.com/neoKode1/directorchair-core/internal/store"
	"github.com/neoKode1/directorchair-core/internal/workflow"
)

// CLI flags
var (
	modelFlag       string
	sessionFlag     string
	storeFlag       string
	tableFlag       string
	seedFlag        int64
	providerURLFlag string
	directorFlag    string
	aspectFlag      string
)

// rootCmd is the main Cobra command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "director-cli",
	Short: "Conversational planner for media generation jobs",
	Long: `DirectorChair CLI turns natural-language requests into concrete media
generation plans: it classifies your intent, picks a capable model, augments
the prompt (length, style fusion, content policy, negative prompt, seed), and
expands multi-output requests into step workflows.

Slash commands inside the loop:
  /authorize                  allow generation jobs to run
  /reset                      clear pending work and authorization
  /director <name>            set the style-fusion director (empty clears)
  /prefer <category> <model>  pin a model for a category ("none" opts out)
  /quit                       exit

Examples:
  director-cli
  director-cli --seed 42 --director "Wes Anderson"
  director-cli --store dynamo --table directorchair-sessions
  director-cli --provider-url https://queue.fal.run`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", advisory.DefaultModelName, "Gemini model for advisory calls (rewrite, re-scoring, chat)")
	rootCmd.Flags().StringVarP(&sessionFlag, "session", "s", "", "Session id (default: a fresh random id)")
	rootCmd.Flags().StringVar(&storeFlag, "store", "memory", "Preference store backend: memory or dynamo")
	rootCmd.Flags().StringVar(&tableFlag, "table", logging.EnvOrDefault("DIRECTOR_TABLE_NAME", "directorchair-sessions"), "DynamoDB table for the dynamo store")
	rootCmd.Flags().Int64Var(&seedFlag, "seed", 0, "Seed for style fusion and seed-pool draws (0 = time-based)")
	rootCmd.Flags().StringVar(&providerURLFlag, "provider-url", os.Getenv("DIRECTOR_PROVIDER_URL"), "Generation queue endpoint (empty = plan-only mode)")
	rootCmd.Flags().StringVar(&directorFlag, "director", "", "Initial active director for style fusion")
	rootCmd.Flags().StringVar(&aspectFlag, "aspect-ratio", "", "Aspect ratio for generated media (default 16:9)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	logging.Init()
	start := time.Now()
	ctx := context.Background()

	sessionID := sessionFlag
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	registry, err := catalog.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load capability catalog")
	}
	vocab, err := intent.LoadVocabulary()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load keyword tables")
	}
	directors, err := director.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load director profiles")
	}

	prefStore := buildStore()
	advisorySvc := buildAdvisory(ctx)

	var rng *rand.Rand
	if seedFlag != 0 {
		rng = rand.New(rand.NewSource(seedFlag))
	}
	pipeline, err := augment.NewPipeline(advisorySvc, directors, vocab, rng, augment.Options{AspectRatio: aspectFlag})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build augmentation pipeline")
	}

	var submitter provider.Submitter
	if providerURLFlag != "" {
		submitter = provider.NewQueueClient(providerURLFlag, nil)
	}

	selector := selection.NewEngine(registry, vocab)
	engine, err := conversation.NewEngine(ctx, conversation.Config{
		SessionID:    sessionID,
		Registry:     registry,
		Classifier:   intent.NewClassifier(vocab),
		Selector:     selector,
		Pipeline:     pipeline,
		Orchestrator: workflow.NewOrchestrator(selector, pipeline, registry),
		Directors:    directors,
		Store:        prefStore,
		Advisory:     advisorySvc,
		Submitter:    submitter,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize session")
	}

	if directorFlag != "" {
		if err := engine.SetActiveDirector(ctx, directorFlag); err != nil {
			log.Fatal().Err(err).Str("director", directorFlag).Msg("Unknown director")
		}
	}

	logging.NewStartupLogger("director-cli").
		Config("sessionId", sessionID).
		Config("store", storeFlag).
		Config("advisoryModel", modelFlag).
		Feature("advisory", advisorySvc != nil).
		Feature("provider", submitter != nil).
		InitDuration(time.Since(start)).
		Log()

	runLoop(ctx, engine)
}

// buildStore returns the configured preference store backend.
func buildStore() store.PreferenceStore {
	switch storeFlag {
	case "memory":
		return store.NewMemoryStore()
	case "dynamo":
		cfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load AWS config for dynamo store")
		}
		ds, err := store.NewDynamoStore(dynamodb.NewFromConfig(cfg), tableFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize dynamo store")
		}
		return ds
	default:
		log.Fatal().Str("store", storeFlag).Msg("Unknown store backend (want memory or dynamo)")
		return nil
	}
}

// buildAdvisory wires the Gemini advisory service, or nil when no API key is
// reachable. Every advisory consumer degrades deterministically.
func buildAdvisory(ctx context.Context) advisory.Service {
	var ssmClient auth.ParameterGetter
	if os.Getenv("GEMINI_API_KEY") == "" {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err == nil {
			ssmClient = ssm.NewFromConfig(cfg)
		}
	}

	apiKey, err := auth.GetAPIKey(ctx, ssmClient)
	if err != nil {
		log.Warn().Err(err).Msg("No Gemini API key available, running without advisory calls")
		return nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create Gemini client, running without advisory calls")
		return nil
	}

	model := modelFlag
	if model == "" {
		model = advisory.DefaultModelName
	}
	if err := auth.ValidateAPIKey(ctx, client, model); err != nil {
		log.Warn().Err(err).Msg("API key validation failed, running without advisory calls")
		return nil
	}
	return advisory.NewGeminiServiceWithModel(client, model)
}

// runLoop is the interactive read-process-print loop.
func runLoop(ctx context.Context, engine *conversation.Engine) {
	fmt.Println("DirectorChair. Describe what you want to create, or /help.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := handleCommand(ctx, engine, line); done {
				return
			}
			continue
		}

		res, err := engine.ProcessTurn(ctx, line, nil)
		if err != nil {
			if errors.Is(err, conversation.ErrTurnInFlight) {
				fmt.Println("Still working on the previous request.")
				continue
			}
			fmt.Printf("Error: %v\n", err)
			continue
		}
		printResult(res)
	}
}

// handleCommand dispatches slash commands. Returns true to exit the loop.
func handleCommand(ctx context.Context, engine *conversation.Engine, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Println("/authorize, /reset, /director <name>, /prefer <category> <model|none>, /quit")

	case "/authorize":
		res, err := engine.Authorize(ctx)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return false
		}
		printResult(res)

	case "/reset":
		engine.Reset()
		fmt.Println("Session cleared.")

	case "/director":
		name := strings.TrimSpace(strings.TrimPrefix(line, "/director"))
		if err := engine.SetActiveDirector(ctx, name); err != nil {
			fmt.Printf("Error: %v\n", err)
			return false
		}
		if name == "" {
			fmt.Println("Director cleared.")
		} else {
			fmt.Printf("Director set: %s\n", name)
		}

	case "/prefer":
		if len(fields) != 3 {
			fmt.Println("Usage: /prefer <category> <model|none>")
			return false
		}
		pref := store.Preference{}
		if fields[2] == "none" {
			pref.Disabled = true
		} else {
			pref.ModelID = fields[2]
		}
		if err := engine.SetPreference(ctx, catalog.Category(fields[1]), pref); err != nil {
			fmt.Printf("Error: %v\n", err)
			return false
		}
		fmt.Printf("Preference saved for %s.\n", fields[1])

	default:
		fmt.Printf("Unknown command %s (try /help)\n", fields[0])
	}
	return false
}

// printResult renders one turn for the terminal.
func printResult(res *conversation.TurnResult) {
	if res == nil {
		return
	}
	if res.Reply != "" {
		fmt.Println(res.Reply)
	}
	if res.Delegation != nil {
		fmt.Printf("  model: %s (%s)\n", res.Delegation.ModelID, res.Delegation.Reason)
		fmt.Printf("  estimated: %s\n", res.Delegation.EstimatedTime)
	}
	for _, c := range res.Corrections {
		fmt.Printf("  adjusted: %q -> %q (%s)\n", c.Original, c.Replacement, c.Reason)
	}
	if res.Workflow != nil && len(res.Workflow.Steps) > 1 {
		fmt.Printf("  workflow %s (%s):\n", res.Workflow.ID, res.Workflow.Template)
		for i, s := range res.Workflow.Steps {
			status := string(s.Status)
			if s.ResultRef != "" {
				status += " " + s.ResultRef
			}
			fmt.Printf("    %d. %-14s %s [%s]\n", i+1, s.Name, s.ModelID, status)
		}
	}
}
