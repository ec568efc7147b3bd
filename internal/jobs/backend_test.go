package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/JonMunkholm/docredact/internal/content"
	"github.com/JonMunkholm/docredact/internal/core"
	"github.com/JonMunkholm/docredact/internal/handler"
)

func staticParser(text string) Parser {
	return ParserFunc(func(context.Context, string) (string, error) { return text, nil })
}

func missingParser() Parser {
	return ParserFunc(func(_ context.Context, id string) (string, error) {
		return "", &core.NotFoundError{Kind: "document", Key: id}
	})
}

func TestPipeline_Run(t *testing.T) {
	var seen string
	p := Pipeline{
		Parser: staticParser("Contact Jane Doe"),
		Classifier: ClassifierFunc(func(_ context.Context, text string) (content.EntityMap, error) {
			seen = text
			return content.EntityMap{"Jane Doe": "[PERSON]"}, nil
		}),
	}

	res, err := p.Run(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if seen != "Contact Jane Doe" {
		t.Errorf("classifier saw %q", seen)
	}
	if res.DocumentID != "doc1" || res.Text != "Contact Jane Doe" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Entities["Jane Doe"] != "[PERSON]" {
		t.Errorf("expected classifier entities, got %v", res.Entities)
	}
}

func TestPipeline_Errors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name     string
		pipeline Pipeline
		contains string
	}{
		{
			name:     "parse error",
			pipeline: Pipeline{Parser: ParserFunc(func(context.Context, string) (string, error) { return "", boom })},
			contains: "extraction failed: parse",
		},
		{
			name: "classify error",
			pipeline: Pipeline{
				Parser: staticParser("text"),
				Classifier: ClassifierFunc(func(context.Context, string) (content.EntityMap, error) {
					return nil, boom
				}),
			},
			contains: "extraction failed: classify",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.pipeline.Run(context.Background(), "doc1")
			if !errors.Is(err, boom) {
				t.Fatalf("expected wrapped boom, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("expected %q in %q", tt.contains, err.Error())
			}
			if core.MapError(err).Code != "JOB002" {
				t.Errorf("expected JOB002, got %s", core.MapError(err).Code)
			}
		})
	}
}

func TestPipeline_NoClassifier(t *testing.T) {
	res, err := Pipeline{Parser: staticParser("text")}.Run(context.Background(), "doc1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Entities == nil || len(res.Entities) != 0 {
		t.Errorf("expected empty entity map, got %v", res.Entities)
	}
}

func TestChainParser(t *testing.T) {
	boom := errors.New("connection refused")

	tests := []struct {
		name    string
		chain   ChainParser
		want    string
		wantErr func(error) bool
	}{
		{"first hit", ChainParser{staticParser("a"), staticParser("b")}, "a", nil},
		{"falls through not found", ChainParser{missingParser(), staticParser("b")}, "b", nil},
		{"all missing", ChainParser{missingParser(), missingParser()}, "", core.IsNotFound},
		{"empty chain", ChainParser{}, "", core.IsNotFound},
		{
			"stops on hard error",
			ChainParser{ParserFunc(func(context.Context, string) (string, error) { return "", boom }), staticParser("b")},
			"",
			func(err error) bool { return errors.Is(err, boom) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.chain.Parse(context.Background(), "doc1")
			if tt.wantErr != nil {
				if !tt.wantErr(err) {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestStagedParser(t *testing.T) {
	reg := core.NewRegistry()
	handler.RegisterAll(reg)
	s := NewStagedParser(reg)

	s.Stage("notes", core.Document{Filename: "notes.txt", Data: []byte("Jane Doe\nAcme Corp\n")})
	s.Stage("archive", core.Document{Filename: "bundle.zip", Data: []byte("PK")})
	s.Stage("unused", core.Document{Filename: "unused.txt", Data: []byte("x")})

	text, err := s.Parse(context.Background(), "notes")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if text != "Jane Doe\nAcme Corp\n" {
		t.Errorf("unexpected text %q", text)
	}

	if _, err := s.Parse(context.Background(), "archive"); !core.IsUnsupportedFormat(err) {
		t.Errorf("expected unsupported format, got %v", err)
	}

	if _, err := s.Parse(context.Background(), "notes"); !core.IsNotFound(err) {
		t.Errorf("expected parsed upload to be dropped, got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("expected only the unparsed upload to remain, got %d", s.Len())
	}

	s.Remove("unused")
	if _, err := s.Parse(context.Background(), "unused"); !core.IsNotFound(err) {
		t.Errorf("expected not found after Remove, got %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("expected no staged uploads, got %d", s.Len())
	}
}

func TestStagedParser_CancelledKeepsUpload(t *testing.T) {
	reg := core.NewRegistry()
	handler.RegisterAll(reg)
	s := NewStagedParser(reg)
	s.Stage("notes", core.Document{Filename: "notes.txt", Data: []byte("Jane Doe")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Parse(ctx, "notes"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if s.Len() != 1 {
		t.Errorf("expected upload to survive a cancelled parse, got %d", s.Len())
	}
}

func TestStagedParser_WithOrchestrator(t *testing.T) {
	reg := core.NewRegistry()
	handler.RegisterAll(reg)
	staged := NewStagedParser(reg)
	staged.Stage("doc1", core.Document{Filename: "a.txt", Data: []byte("Jane Doe")})

	o := New(Pipeline{
		Parser: ChainParser{staged},
		Classifier: ClassifierFunc(func(_ context.Context, text string) (content.EntityMap, error) {
			return content.EntityMap{strings.TrimSpace(text): "[PERSON]"}, nil
		}),
	}, Options{})
	defer o.Close(context.Background())

	if _, err := o.Submit(context.Background(), "doc1"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	st := waitForState(t, o, "doc1", StateReady)
	if st.Result.Entities["Jane Doe"] != "[PERSON]" {
		t.Errorf("unexpected entities: %v", st.Result.Entities)
	}
	if staged.Len() != 0 {
		t.Errorf("expected staged upload to be dropped once the job is ready, got %d", staged.Len())
	}
}
