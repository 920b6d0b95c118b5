package usecases

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"reflect"
	"unicode/utf8"

	"github.com/sophialabs/httpmocker/internal/infrastructure/ports"
	"github.com/sophialabs/httpmocker/pkg/mapper"
	"github.com/sophialabs/httpmocker/pkg/policy"
	"github.com/sophialabs/httpmocker/pkg/scenario"
)

// BodyFileExtension is the extension of recorded body files.
const BodyFileExtension = ".txt"

// Exchange is one real request with either the response or the transport
// error it produced.
type Exchange struct {
	Request  *scenario.Request
	Response *scenario.Response
	Err      error
}

// RecordExchangeUseCase appends captured exchanges to scenario files.
type RecordExchangeUseCase struct {
	store        ports.ScenarioStore
	filing       policy.FilingPolicy
	mapper       mapper.Mapper
	logger       ports.Logger
	onRecorded   func(path string)
	ignoreErrors bool
}

// NewRecordExchangeUseCase creates a new use case. onRecorded, when set, is
// called with every scenario path written.
func NewRecordExchangeUseCase(
	store ports.ScenarioStore,
	filing policy.FilingPolicy,
	m mapper.Mapper,
	logger ports.Logger,
	onRecorded func(path string),
	ignoreErrors bool,
) *RecordExchangeUseCase {
	return &RecordExchangeUseCase{
		store:        store,
		filing:       filing,
		mapper:       m,
		logger:       logger,
		onRecorded:   onRecorded,
		ignoreErrors: ignoreErrors,
	}
}

// Execute persists the exchange as a new entry at the end of its scenario
// file and returns the scenario path. Failures are *scenario.RecordingError
// values unless the use case ignores errors, in which case they are logged.
func (uc *RecordExchangeUseCase) Execute(_ context.Context, ex Exchange) (string, error) {
	target := uc.filing.Path(ex.Request)
	if err := uc.record(target, ex); err != nil {
		rerr := &scenario.RecordingError{Path: target, Err: err}
		if uc.ignoreErrors {
			uc.logger.Error("failed to record exchange", "path", target, "error", err)
			return target, nil
		}
		return target, rerr
	}
	if uc.onRecorded != nil {
		uc.onRecorded(target)
	}
	uc.logger.Info("recorded exchange", "path", target, "method", ex.Request.Method, "url", ex.Request.Path)
	return target, nil
}

func (uc *RecordExchangeUseCase) record(target string, ex Exchange) error {
	unlock := uc.store.Lock(target)
	defer unlock()

	existing, err := uc.existingEntries(target)
	if err != nil {
		return err
	}

	entry := scenario.Entry{Request: TemplateFor(ex.Request)}
	var bodyFile string
	switch {
	case ex.Err != nil:
		entry.Error = &scenario.NetworkError{Type: errorType(ex.Err), Message: ex.Err.Error()}
	case ex.Response != nil:
		entry.Response = descriptorFor(ex.Response)
		if len(ex.Response.Body) > 0 {
			bodyFile, err = uc.store.ClaimBodyFile(target, BodyFileExtension, ex.Response.Body)
			if err != nil {
				return err
			}
			entry.Response.BodyFile = bodyFile
		}
	default:
		return errors.New("exchange has neither response nor error")
	}

	data, err := uc.mapper.Marshal(append(existing, entry))
	if err != nil {
		uc.removeOrphan(target, bodyFile)
		return err
	}
	if err := uc.store.WriteAtomic(target, data); err != nil {
		uc.removeOrphan(target, bodyFile)
		return err
	}
	return nil
}

// existingEntries loads the entries already stored at path. A corrupt file
// aborts the recording so that it is never overwritten.
func (uc *RecordExchangeUseCase) existingEntries(target string) ([]scenario.Entry, error) {
	data, err := uc.store.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entries, err := uc.mapper.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("existing scenario is not readable, leaving it untouched: %w", err)
	}
	return entries, nil
}

func (uc *RecordExchangeUseCase) removeOrphan(scenarioPath, bodyFile string) {
	if bodyFile == "" {
		return
	}
	name := path.Join(path.Dir(scenarioPath), bodyFile)
	if err := uc.store.Remove(name); err != nil {
		uc.logger.Warn("failed to remove orphaned body file", "file", name, "error", err)
	}
}

// TemplateFor derives the matcher that replays exactly req: method, path,
// every param and header, and the body when there is one.
func TemplateFor(req *scenario.Request) scenario.RequestTemplate {
	reqPath := scenario.Exact(req.Path)
	t := scenario.RequestTemplate{
		Method: req.Method,
		Path:   &reqPath,
	}
	for _, p := range req.Params {
		v := exactValue(p.Value)
		t.Params = append(t.Params, scenario.FieldMatcher{Name: p.Name, Value: &v})
	}
	for _, h := range req.Headers {
		v := exactValue(h.Value)
		t.Headers = append(t.Headers, scenario.FieldMatcher{Name: h.Name, Value: &v})
	}
	if len(req.Body) > 0 {
		b := exactValue(string(req.Body))
		t.Body = &b
	}
	return t
}

// exactValue matches s literally. Text formats cannot carry invalid UTF-8,
// so such values are stored as bytes.
func exactValue(s string) scenario.StringMatcher {
	if utf8.ValidString(s) {
		return scenario.Exact(s)
	}
	return scenario.Bytes([]byte(s))
}

func descriptorFor(resp *scenario.Response) *scenario.ResponseDescriptor {
	d := &scenario.ResponseDescriptor{
		Code:    resp.Code,
		Headers: append([]scenario.KeyValue(nil), resp.Headers...),
	}
	for _, h := range resp.Headers {
		if http.CanonicalHeaderKey(h.Name) == "Content-Type" {
			d.MediaType = h.Value
			break
		}
	}
	return d
}

func errorType(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return reflect.TypeOf(err).String()
		}
		err = next
	}
}
