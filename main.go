// Command studypad asks the configured model from the terminal, showing its
// reasoning and answer as they stream in.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/RichardoC/studypad/internal/config"
	"github.com/RichardoC/studypad/internal/llm"
	"github.com/RichardoC/studypad/internal/present"
)

var (
	configPath    string
	stream        bool
	showReasoning bool
	plain         bool
	contextFile   string
	itemCount     int
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "studypad",
		Short:         "Ask the study assistant from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a TOML config file (default $STUDYPAD_CONFIG)")

	ask := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question",
		Long: `Ask a question and render the answer.

Examples:
  studypad ask "What is a derivative?"
  studypad ask --reasoning "Why is the sky blue?"
  studypad ask --context-file notes.md "Summarize chapter 2"`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAsk,
	}
	ask.Flags().BoolVar(&stream, "stream", true, "Render fragments as they arrive")
	ask.Flags().BoolVar(&showReasoning, "reasoning", false, "Show the model's reasoning")
	ask.Flags().BoolVar(&plain, "plain", false, "Do not render markdown")
	ask.Flags().StringVar(&contextFile, "context-file", "", "Answer only from this study material")

	title := &cobra.Command{
		Use:   "title <message>",
		Short: "Suggest a conversation title for a first message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), svc.GenerateChatTitle(cmd.Context(), strings.Join(args, " ")))
			return nil
		},
	}

	quiz := &cobra.Command{
		Use:   "quiz <material-file>",
		Short: "Generate multiple-choice questions from study material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args[0], func(ctx context.Context, svc *llm.Service, material string) any {
				return svc.GenerateQuizQuestions(ctx, material, itemCount)
			})
		},
	}
	cards := &cobra.Command{
		Use:   "cards <material-file>",
		Short: "Generate study cards from study material",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, args[0], func(ctx context.Context, svc *llm.Service, material string) any {
				return svc.GenerateStudyCards(ctx, material, itemCount)
			})
		},
	}
	for _, c := range []*cobra.Command{quiz, cards} {
		c.Flags().IntVarP(&itemCount, "count", "n", 5, "Number of items to generate")
	}

	root.AddCommand(ask, title, quiz, cards)
	return root
}

func newService() (*llm.Service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	backend, err := llm.NewBackend(cfg.LLM.BackendConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM backend: %w", err)
	}
	// Terminal output stays clean unless development logging is asked for.
	logger := zap.NewNop()
	if cfg.Log.Mode == "development" {
		if logger, err = cfg.Log.NewLogger(); err != nil {
			return nil, err
		}
	}
	return llm.New(backend, logger, cfg.LLM.Timeout.Duration), nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	var material string
	if contextFile != "" {
		if material, err = readMaterial(contextFile); err != nil {
			return err
		}
	}

	src, err := svc.StreamChat(cmd.Context(), material, nil, strings.Join(args, " "))
	if err != nil {
		return err
	}
	renderer := present.NewTerminalRenderer(cmd.OutOrStdout(), present.TerminalOptions{
		Live:          stream,
		ShowReasoning: showReasoning,
		Markdown:      !plain && !stream,
	})
	res := present.NewDriver(renderer, nil, nil).Run(cmd.Context(), src)
	return res.Err
}

func runGenerate(cmd *cobra.Command, path string, generate func(context.Context, *llm.Service, string) any) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	material, err := readMaterial(path)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(generate(cmd.Context(), svc, material), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", out)
	return nil
}

// readMaterial reads path, or stdin when path is "-".
func readMaterial(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading material: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("material %s is empty", path)
	}
	return string(data), nil
}
