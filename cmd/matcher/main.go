package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"finmatch/pkg/core/hierarchy"
	"finmatch/pkg/core/ingest"
	"finmatch/pkg/core/match"
	"finmatch/pkg/core/section"
	"finmatch/pkg/core/semantic"
	"finmatch/pkg/core/store"
	"finmatch/pkg/core/terminology"
	"finmatch/pkg/core/xref"
)

// SectionReport bundles everything the pipeline produced for one section.
type SectionReport struct {
	Section section.Context      `json:"section"`
	Session *match.Session       `json:"session"`
	Summary match.SessionSummary `json:"summary"`
}

// DocumentReport is the top level JSON output of the matcher.
type DocumentReport struct {
	Input    string                `json:"input"`
	Sections []SectionReport       `json:"sections"`
	Xref     *xref.Report          `json:"cross_references,omitempty"`
	Notes    []xref.NoteSection    `json:"note_sections,omitempty"`
	Refs     []xref.CrossReference `json:"references,omitempty"`
	Issues   []xref.Issue          `json:"consistency_issues,omitempty"`
}

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, assuming environment variables are set.")
	}

	var (
		inputPath  = flag.String("input", "", "path to the statement document (required)")
		format     = flag.String("format", "", "input format: text, html, or md (default: by extension)")
		configPath = flag.String("config", "", "optional HJSON matching config")
		useDB      = flag.Bool("db", false, "persist sessions to Postgres (DATABASE_URL)")
		useGemini  = flag.Bool("gemini", false, "enable the semantic layer via Gemini embeddings (GEMINI_API_KEY)")
	)
	flag.Parse()

	if *inputPath == "" {
		flag.Usage()
		log.Fatal("Error: -input is required.")
	}

	ctx := context.Background()

	lines, err := loadLines(*inputPath, *format)
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}

	cfg := match.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			log.Fatalf("Failed to read config %s: %v", *configPath, err)
		}
		cfg, err = match.LoadConfig(f)
		f.Close()
		if err != nil {
			log.Fatalf("Invalid config: %v", err)
		}
	}

	catalog, err := terminology.DefaultCatalog()
	if err != nil {
		log.Fatalf("Failed to load terminology: %v", err)
	}
	relations, err := hierarchy.DefaultMapper()
	if err != nil {
		log.Fatalf("Failed to load relationships: %v", err)
	}

	var embedder match.TextEmbedder = match.NoEmbedder{}
	if *useGemini {
		gem, err := semantic.NewGeminiEmbedder(ctx, "")
		if err != nil {
			log.Fatalf("Failed to init Gemini embedder: %v", err)
		}
		embedder = gem
	}

	engine, err := match.NewEngine(ctx, catalog, relations, cfg, match.FuzzWuzzy{}, embedder)
	if err != nil {
		log.Fatalf("Failed to build matching engine: %v", err)
	}

	classifier := section.NewClassifier()
	sections := classifier.ClassifyDocument(lines)
	if len(sections) == 0 {
		// Nothing classified. Match the whole document as one unlabeled block.
		sections = []section.Context{{StartLine: 0, EndLine: len(lines) - 1}}
	}

	report := DocumentReport{Input: *inputPath}
	matchesByType := map[string][]match.MatchResult{}
	for _, sec := range sections {
		block := lines[sec.StartLine : sec.EndLine+1]
		session, err := engine.MatchDocument(ctx, block, sec.SectionType)
		if err != nil {
			log.Fatalf("Matching failed for section %s: %v", sec.SectionType, err)
		}
		for i := range session.Results {
			session.Results[i].Confidence *= classifier.SectionBoost(session.Results[i].TermKey, sec.SectionType)
			session.Results[i].LineNumber += sec.StartLine
		}
		matchesByType[sec.SectionType] = append(matchesByType[sec.SectionType], session.Results...)
		report.Sections = append(report.Sections, SectionReport{
			Section: sec,
			Session: session,
			Summary: session.Summary(),
		})
	}

	resolver := xref.NewResolver()
	refs, notes, err := resolver.ResolveReferences(ctx, engine, lines)
	if err != nil {
		log.Printf("[matcher] cross-reference resolution failed: %v", err)
	} else {
		xr := xref.BuildReport(refs, notes)
		report.Xref = &xr
		report.Refs = refs
		report.Notes = notes
	}

	balanceSheet := append(
		matchesByType[section.BalanceSheetAssets],
		matchesByType[section.BalanceSheetLiabilities]...)
	report.Issues = resolver.ValidateConsistency(
		balanceSheet,
		matchesByType[section.IncomeStatement],
		matchesByType[section.CashFlow],
	)

	if *useDB {
		if err := store.InitDB(ctx); err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer store.Close()
		pool := store.GetPool()
		if err := store.EnsureSchema(ctx, pool); err != nil {
			log.Fatalf("Failed to ensure schema: %v", err)
		}
		repo := store.NewSessionRepo(pool)
		for _, sr := range report.Sections {
			if err := repo.SaveSession(ctx, sr.Session); err != nil {
				log.Fatalf("Failed to persist session %s: %v", sr.Session.ID, err)
			}
		}
		log.Printf("[matcher] persisted %d sessions", len(report.Sections))
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode report: %v", err)
	}
	fmt.Println(string(out))
}

// loadLines reads the document and extracts lines according to its format.
func loadLines(path, format string) ([]string, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".html", ".htm":
			format = "html"
		case ".md", ".markdown":
			format = "md"
		default:
			format = "text"
		}
	}

	switch format {
	case "html":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ingest.LinesFromHTML(f)
	case "md":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ingest.LinesFromMarkdown(raw), nil
	case "text":
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return ingest.LinesFromText(string(raw)), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want text, html, or md)", format)
	}
}
