package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/ebookforge/ebookctl/internal/artifacts"
	"github.com/ebookforge/ebookctl/internal/endpoint"
	"github.com/ebookforge/ebookctl/internal/orchestrator"
	"github.com/ebookforge/ebookctl/internal/progresslog"
	"github.com/ebookforge/ebookctl/pkg/domain"
)

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

type profile struct {
	BaseURL         string `yaml:"baseUrl"`
	GoogleAPIKey    string `yaml:"googleApiKey"`
	OpenAIAPIKey    string `yaml:"openaiApiKey"`
	GoogleModel     string `yaml:"googleModel"`
	GoogleEditModel string `yaml:"googleEditModel"`
	OpenAIModel     string `yaml:"openaiModel"`
	Personality     string `yaml:"personality"`
}

type cliConfig struct {
	CurrentProfile string             `yaml:"currentProfile"`
	Profiles       map[string]profile `yaml:"profiles"`
}

func main() {
	baseURL := getenv("EBOOKCTL_BASE_URL", "")
	profileName := getenv("EBOOKCTL_PROFILE", "")
	debug := getenvBool("EBOOKCTL_DEBUG", false)
	ui := newUI()

	root := &cobra.Command{
		Use:   "ebookctl",
		Short: "ebookctl CLI",
		Long:  "ebookctl CLI for submitting ebook generation requests and collecting the resulting PDF.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&baseURL, "base-url", baseURL, "Base URL of the generation service (override)")
	root.PersistentFlags().StringVar(&profileName, "profile", profileName, "Config profile")
	root.PersistentFlags().BoolVar(&debug, "debug", debug, "Verbose diagnostics")

	root.AddCommand(initCmd(&profileName, ui))
	root.AddCommand(authCmd(&profileName, ui))
	root.AddCommand(submitCmd(&baseURL, &profileName, &debug, ui))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func initCmd(profileName *string, ui *ui) *cobra.Command {
	var (
		baseURL     string
		personality string
		noPrompt    bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]

			if baseURL == "" {
				baseURL = prof.BaseURL
			}
			if personality == "" {
				personality = prof.Personality
			}
			if personality == "" {
				personality = "neutra"
			}

			if !noPrompt {
				reader := bufio.NewReader(os.Stdin)
				baseURL = prompt(reader, "Base URL", baseURL)
				personality = prompt(reader, "Default personality", personality)
			}

			prof.BaseURL = strings.TrimSpace(baseURL)
			prof.Personality = strings.TrimSpace(personality)

			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}

			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Initialized profile '%s' at %s\n", ui.ok("[OK]"), active, cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Base URL of the generation service")
	cmd.Flags().StringVar(&personality, "personality", "", "Default writing personality")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

func authCmd(profileName *string, ui *ui) *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored API keys",
	}

	var (
		googleKey string
		openaiKey string
		noPrompt  bool
	)

	set := &cobra.Command{
		Use:   "set",
		Short: "Store API keys in config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if googleKey == "" && openaiKey == "" && !noPrompt {
				g, err := promptSecret("Google API key (empty to skip)")
				if err != nil {
					return err
				}
				googleKey = g
				o, err := promptSecret("OpenAI API key (empty to skip)")
				if err != nil {
					return err
				}
				openaiKey = o
			}
			if googleKey == "" && openaiKey == "" {
				return errors.New("provide --google-api-key and/or --openai-api-key")
			}
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			if googleKey != "" {
				prof.GoogleAPIKey = strings.TrimSpace(googleKey)
			}
			if openaiKey != "" {
				prof.OpenAIAPIKey = strings.TrimSpace(openaiKey)
			}
			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s API keys updated for '%s'\n", ui.ok("[OK]"), active)
			return nil
		},
	}
	set.Flags().StringVar(&googleKey, "google-api-key", "", "Google Gemini API key")
	set.Flags().StringVar(&openaiKey, "openai-api-key", "", "OpenAI API key")
	set.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show stored credentials (masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			fmt.Printf("%s Profile: %s\n", ui.title("ebookctl"), active)
			fmt.Printf("%s Base URL:    %s\n", ui.info("•"), emptyOr(prof.BaseURL, "<unset>"))
			fmt.Printf("%s Google key:  %s\n", ui.info("•"), maskToken(prof.GoogleAPIKey))
			fmt.Printf("%s OpenAI key:  %s\n", ui.info("•"), maskToken(prof.OpenAIAPIKey))
			fmt.Printf("%s Personality: %s\n", ui.info("•"), emptyOr(prof.Personality, "<unset>"))
			return nil
		},
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Clear stored API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			prof.GoogleAPIKey = ""
			prof.OpenAIAPIKey = ""
			cfg.Profiles[active] = prof
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s API keys cleared for '%s'\n", ui.ok("[OK]"), active)
			return nil
		},
	}

	auth.AddCommand(set, show, clear)
	return auth
}

func submitCmd(baseURL, profileName *string, debug *bool, ui *ui) *cobra.Command {
	var (
		text            string
		textFile        string
		files           []string
		personality     string
		output          string
		googleKey       string
		openaiKey       string
		googleModel     string
		googleEditModel string
		openaiModel     string
	)

	cmd := &cobra.Command{
		Use:     "submit",
		Short:   "Submit a generation request and download the ebook",
		Example: "ebookctl submit --text-file notes.txt --file ref.pdf --output meu_livro.pdf",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _ := loadConfig()
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]

			if text == "" && textFile != "" {
				data, err := os.ReadFile(textFile)
				if err != nil {
					return fmt.Errorf("read text file: %w", err)
				}
				text = string(data)
			}
			if personality == "" {
				personality = prof.Personality
			}
			if personality == "" {
				personality = "neutra"
			}
			if googleKey == "" {
				googleKey = firstNonEmpty(os.Getenv("EBOOKCTL_GOOGLE_API_KEY"), prof.GoogleAPIKey)
			}
			if openaiKey == "" {
				openaiKey = firstNonEmpty(os.Getenv("EBOOKCTL_OPENAI_API_KEY"), prof.OpenAIAPIKey)
			}
			if googleModel == "" {
				googleModel = prof.GoogleModel
			}
			if googleEditModel == "" {
				googleEditModel = prof.GoogleEditModel
			}
			if openaiModel == "" {
				openaiModel = prof.OpenAIModel
			}

			attachments, err := readAttachments(files, ui)
			if err != nil {
				return err
			}

			req := domain.NewSubmissionRequest(map[string]string{
				domain.FieldTextContent:     text,
				domain.FieldPersonality:     personality,
				domain.FieldGoogleAPIKey:    googleKey,
				domain.FieldOpenAIAPIKey:    openaiKey,
				domain.FieldOutputPath:      output,
				domain.FieldGoogleModel:     googleModel,
				domain.FieldGoogleEditModel: googleEditModel,
				domain.FieldOpenAIModel:     openaiModel,
			}, attachments)

			env := endpoint.Static{
				OverrideURL: *baseURL,
				DeclaredURL: prof.BaseURL,
				OriginURL:   os.Getenv("EBOOKCTL_ORIGIN"),
			}

			store, err := artifacts.NewStore("", 0)
			if err != nil {
				return err
			}
			log := progresslog.New(os.Stdout)

			level := slog.LevelWarn
			if *debug {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			o := orchestrator.New(env, log, store, logger)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(os.Stderr))
			spin.Suffix = " Generating ebook, this can take several minutes..."
			spin.Start()
			result, err := o.Submit(ctx, req)
			spin.Stop()
			if err != nil {
				return err
			}

			fmt.Printf("%s Ebook generated: %s\n", ui.ok("[OK]"), result.Filename)
			if result.Delivered != "" {
				fmt.Printf("%s Saved to %s\n", ui.info("[INFO]"), result.Delivered)
				_ = result.Handle.Release()
			} else {
				fmt.Printf("%s Automatic save failed; copy it from %s\n", ui.warn("[WARN]"), result.Handle.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Main text content")
	cmd.Flags().StringVar(&textFile, "text-file", "", "Read the main text content from a file")
	cmd.Flags().StringArrayVar(&files, "file", nil, "Reference file to attach (.pdf or .txt, repeatable)")
	cmd.Flags().StringVar(&personality, "personality", "", "Writing personality")
	cmd.Flags().StringVar(&output, "output", "", "Output path for the generated PDF")
	cmd.Flags().StringVar(&googleKey, "google-api-key", "", "Google Gemini API key")
	cmd.Flags().StringVar(&openaiKey, "openai-api-key", "", "OpenAI API key")
	cmd.Flags().StringVar(&googleModel, "google-model", "", "Google model for content generation")
	cmd.Flags().StringVar(&googleEditModel, "google-edit-model", "", "Google model for the editing pass")
	cmd.Flags().StringVar(&openaiModel, "openai-model", "", "OpenAI model")
	return cmd
}

// readAttachments loads the reference files, skipping anything the
// service would ignore anyway.
func readAttachments(paths []string, ui *ui) ([]domain.Attachment, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Reading attachments"),
		progressbar.OptionSetWidth(18),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	var out []domain.Attachment
	for _, p := range paths {
		_ = bar.Add(1)
		ext := strings.ToLower(filepath.Ext(p))
		if ext != ".pdf" && ext != ".txt" {
			fmt.Fprintf(os.Stderr, "%s Skipping %s: only .pdf and .txt references are used\n", ui.warn("[WARN]"), p)
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read attachment %s: %w", p, err)
		}
		out = append(out, domain.Attachment{Name: filepath.Base(p), Data: data})
	}
	return out, nil
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvBool(k string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func helpTemplate(ui *ui) string {
	title := ui.title("ebookctl")
	return fmt.Sprintf(`%s — CLI for the ebook generation service

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  ebookctl init
  ebookctl auth set --google-api-key AIza...
  ebookctl submit --text-file notes.txt --file ref.pdf --output meu_livro.pdf

`, title, configPath())
}

func configPath() string {
	if v := strings.TrimSpace(os.Getenv("EBOOKCTL_CONFIG_DIR")); v != "" {
		return filepath.Join(v, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".ebookctl", "config.yaml")
}

func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	b, err := termReadPassword()
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func termReadPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		return []byte(strings.TrimSpace(line)), err
	}
	return term.ReadPassword(fd)
}

func loadConfig() (cliConfig, string, error) {
	path := configPath()
	var cfg cliConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cliConfig{Profiles: map[string]profile{}}, path, nil
		}
		return cfg, path, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profile{}
	}
	return cfg, path, nil
}

func saveConfig(cfg cliConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func resolveProfileName(flag string, cfg cliConfig) string {
	if strings.TrimSpace(flag) != "" {
		return strings.TrimSpace(flag)
	}
	if v := strings.TrimSpace(os.Getenv("EBOOKCTL_PROFILE")); v != "" {
		return v
	}
	if cfg.CurrentProfile != "" {
		return cfg.CurrentProfile
	}
	return "default"
}

func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func maskToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "<unset>"
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func emptyOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
