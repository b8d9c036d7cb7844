// Package server exposes candidate fusion over gRPC.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/ocr-fusion/internal/common"
	"github.com/joseph-ayodele/ocr-fusion/internal/fusion"
	"github.com/joseph-ayodele/ocr-fusion/internal/textdist"
)

const (
	ServiceName = "ocrfuse.v1.FusionService"
	FuseMethod  = "/" + ServiceName + "/Fuse"
)

// FusionServer is the server API of the fusion service. Messages are generic
// structs so clients need no generated code:
//
//	request:  {candidates: {key: text}, anchor_key, mode, reference}
//	response: {text, selected_candidates, mode, cer?, wer?}
type FusionServer interface {
	Fuse(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// FusionServiceDesc describes the fusion service for grpc.Server.RegisterService.
var FusionServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FusionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Fuse", Handler: fuseHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ocrfuse/v1/fusion.proto",
}

func fuseHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FusionServer).Fuse(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FuseMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FusionServer).Fuse(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterFusionServer registers srv on s.
func RegisterFusionServer(s grpc.ServiceRegistrar, srv FusionServer) {
	s.RegisterService(&FusionServiceDesc, srv)
}

// FusionService implements FusionServer on top of a fusion.Fuser.
//
// Unlike fusion.Best, which scores against an empty reference, the service
// rejects mode "best" without a reference text with INVALID_INPUT
// (codes.InvalidArgument over gRPC).
type FusionService struct {
	fuser  *fusion.Fuser
	logger *slog.Logger
}

func NewFusionService(fuser *fusion.Fuser, logger *slog.Logger) *FusionService {
	if logger == nil {
		logger = slog.Default()
	}
	if fuser == nil {
		fuser = fusion.NewFuser(fusion.WithLogger(logger))
	}
	return &FusionService{fuser: fuser, logger: logger}
}

// FuseRequest is the decoded form of a Fuse request.
type FuseRequest struct {
	Candidates map[string]string
	AnchorKey  string
	Mode       string
	Reference  string
}

// FuseResponse is the decoded form of a Fuse response. CER and WER are set when
// the request carried a reference text.
type FuseResponse struct {
	Text               string
	SelectedCandidates []string
	Mode               string
	CER, WER           *float64
}

// Fuse decodes req, fuses it and encodes the response. Configuration and input
// errors, including "best" without a reference, map to codes.InvalidArgument.
func (s *FusionService) Fuse(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	start := time.Now()
	in, err := DecodeFuseRequest(req)
	if err != nil {
		return nil, common.StatusFromError(err)
	}
	out, err := s.fuse(in)
	if err != nil {
		s.logger.WarnContext(ctx, "fuse.rejected", "error", err)
		return nil, common.StatusFromError(err)
	}
	resp, err := out.encode()
	if err != nil {
		return nil, common.InternalErrorf("encode response: %v", err)
	}
	s.logger.InfoContext(ctx, "fuse.ok",
		"mode", out.Mode,
		"candidates", len(in.Candidates),
		"selected", len(out.SelectedCandidates),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

// Run fuses a decoded request in process. Errors are application errors, not gRPC statuses.
func (s *FusionService) Run(ctx context.Context, in FuseRequest) (FuseResponse, error) {
	if len(in.Candidates) == 0 {
		return FuseResponse{}, invalidInput("no candidates")
	}
	out, err := s.fuse(in)
	if err == nil {
		s.logger.DebugContext(ctx, "fuse.local", "mode", out.Mode, "candidates", len(in.Candidates))
	}
	return out, err
}

func (s *FusionService) fuse(in FuseRequest) (FuseResponse, error) {
	modeName := in.Mode
	if strings.TrimSpace(modeName) == "" {
		modeName = string(fusion.ModeFuse)
	}
	mode, err := fusion.ParseMode(modeName)
	if err != nil {
		return FuseResponse{}, err
	}
	set := fusion.FromMap(in.Candidates)

	var sel fusion.Selection
	if mode == fusion.ModeFuse && in.AnchorKey != "" {
		surviving := set.Surviving()
		sel = fusion.Selection{
			InputText:          s.fuser.Fuse(surviving, fusion.CandidateKey(in.AnchorKey)),
			SelectedCandidates: surviving.Keys(),
		}
	} else {
		if mode == fusion.ModeBest && in.Reference == "" {
			return FuseResponse{}, common.NewAppError(common.CodeInvalidInput, "best mode needs a reference text", common.ErrInvalidInput)
		}
		sel, err = s.fuser.Select(mode, set, in.Reference, textdist.Rates)
		if err != nil {
			return FuseResponse{}, err
		}
	}

	out := FuseResponse{
		Text:               sel.InputText,
		SelectedCandidates: fusion.StringKeys(sel.SelectedCandidates),
		Mode:               mode.String(),
	}
	if in.Reference != "" {
		cer, wer := textdist.Rates(in.Reference, sel.InputText)
		out.CER, out.WER = &cer, &wer
	}
	return out, nil
}

// DecodeFuseRequest validates and decodes a Fuse request struct.
func DecodeFuseRequest(req *structpb.Struct) (FuseRequest, error) {
	var out FuseRequest
	fields := req.GetFields()
	cands := fields["candidates"].GetStructValue()
	if cands == nil {
		return out, invalidInput("candidates must be an object of key to text")
	}
	out.Candidates = make(map[string]string, len(cands.GetFields()))
	for k, v := range cands.GetFields() {
		sv, ok := v.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return out, invalidInput(fmt.Sprintf("candidate %q must be a string", k))
		}
		out.Candidates[k] = sv.StringValue
	}
	var err error
	if out.AnchorKey, err = optionalString(fields, "anchor_key"); err != nil {
		return out, err
	}
	if out.Mode, err = optionalString(fields, "mode"); err != nil {
		return out, err
	}
	if out.Reference, err = optionalString(fields, "reference"); err != nil {
		return out, err
	}
	return out, nil
}

func optionalString(fields map[string]*structpb.Value, name string) (string, error) {
	v, ok := fields[name]
	if !ok {
		return "", nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return k.StringValue, nil
	case *structpb.Value_NullValue:
		return "", nil
	default:
		return "", invalidInput(name + " must be a string")
	}
}

func invalidInput(msg string) error {
	return common.NewAppError(common.CodeInvalidInput, msg, common.ErrInvalidInput)
}

func (r FuseRequest) encode() (*structpb.Struct, error) {
	cands := make(map[string]any, len(r.Candidates))
	for k, v := range r.Candidates {
		cands[k] = v
	}
	m := map[string]any{"candidates": cands}
	if r.AnchorKey != "" {
		m["anchor_key"] = r.AnchorKey
	}
	if r.Mode != "" {
		m["mode"] = r.Mode
	}
	if r.Reference != "" {
		m["reference"] = r.Reference
	}
	return structpb.NewStruct(m)
}

func (r FuseResponse) encode() (*structpb.Struct, error) {
	selected := make([]any, len(r.SelectedCandidates))
	for i, k := range r.SelectedCandidates {
		selected[i] = k
	}
	m := map[string]any{
		"text":                r.Text,
		"selected_candidates": selected,
		"mode":                r.Mode,
	}
	if r.CER != nil {
		m["cer"] = *r.CER
	}
	if r.WER != nil {
		m["wer"] = *r.WER
	}
	return structpb.NewStruct(m)
}

func decodeFuseResponse(s *structpb.Struct) (FuseResponse, error) {
	fields := s.GetFields()
	out := FuseResponse{
		Text: fields["text"].GetStringValue(),
		Mode: fields["mode"].GetStringValue(),
	}
	list := fields["selected_candidates"].GetListValue()
	if list == nil {
		return out, errors.New("response lacks selected_candidates")
	}
	out.SelectedCandidates = make([]string, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		out.SelectedCandidates = append(out.SelectedCandidates, v.GetStringValue())
	}
	if v, ok := fields["cer"]; ok {
		cer := v.GetNumberValue()
		out.CER = &cer
	}
	if v, ok := fields["wer"]; ok {
		wer := v.GetNumberValue()
		out.WER = &wer
	}
	return out, nil
}
