package contract

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RoundServiceName is the fully-qualified name of the round control service.
const RoundServiceName = "darkforest.round.v1.RoundService"

// Procedure paths of the round control service.
const (
	ResumeRoundProcedure = "/darkforest.round.v1.RoundService/ResumeRound"
	PauseRoundProcedure  = "/darkforest.round.v1.RoundService/PauseRound"
	FetchScoresProcedure = "/darkforest.round.v1.RoundService/FetchScores"
)

// RoundService is the contract surface exposed over Connect. Hardhat satisfies it.
type RoundService interface {
	ResumeRound(ctx context.Context) error
	PauseRound(ctx context.Context) error
	FetchScores(ctx context.Context) ([]byte, error)
}

// Remote talks to a contract runtime served over Connect.
type Remote struct {
	resume *connect.Client[emptypb.Empty, emptypb.Empty]
	pause  *connect.Client[emptypb.Empty, emptypb.Empty]
	scores *connect.Client[emptypb.Empty, wrapperspb.BytesValue]
}

// NewRemote creates a client for the round control service at baseURL.
func NewRemote(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Remote {
	return &Remote{
		resume: connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+ResumeRoundProcedure, opts...),
		pause:  connect.NewClient[emptypb.Empty, emptypb.Empty](httpClient, baseURL+PauseRoundProcedure, opts...),
		scores: connect.NewClient[emptypb.Empty, wrapperspb.BytesValue](httpClient, baseURL+FetchScoresProcedure, opts...),
	}
}

func (r *Remote) ResumeRound(ctx context.Context) error {
	if _, err := r.resume.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{})); err != nil {
		return fmt.Errorf("resume round: %w", err)
	}
	return nil
}

func (r *Remote) PauseRound(ctx context.Context) error {
	if _, err := r.pause.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{})); err != nil {
		return fmt.Errorf("pause round: %w", err)
	}
	return nil
}

func (r *Remote) FetchScores(ctx context.Context) ([]byte, error) {
	res, err := r.scores.CallUnary(ctx, connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		return nil, fmt.Errorf("fetch scores: %w", err)
	}
	return res.Msg.GetValue(), nil
}

// NewRoundServiceHandler serves svc over Connect. It returns the path to mount
// the handler on.
func NewRoundServiceHandler(svc RoundService, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(ResumeRoundProcedure, connect.NewUnaryHandler(
		ResumeRoundProcedure,
		func(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
			if err := svc.ResumeRound(ctx); err != nil {
				return nil, connect.NewError(connect.CodeUnavailable, err)
			}
			return connect.NewResponse(&emptypb.Empty{}), nil
		},
		opts...,
	))
	mux.Handle(PauseRoundProcedure, connect.NewUnaryHandler(
		PauseRoundProcedure,
		func(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[emptypb.Empty], error) {
			if err := svc.PauseRound(ctx); err != nil {
				return nil, connect.NewError(connect.CodeUnavailable, err)
			}
			return connect.NewResponse(&emptypb.Empty{}), nil
		},
		opts...,
	))
	mux.Handle(FetchScoresProcedure, connect.NewUnaryHandler(
		FetchScoresProcedure,
		func(ctx context.Context, _ *connect.Request[emptypb.Empty]) (*connect.Response[wrapperspb.BytesValue], error) {
			data, err := svc.FetchScores(ctx)
			if err != nil {
				return nil, connect.NewError(connect.CodeUnavailable, err)
			}
			return connect.NewResponse(wrapperspb.Bytes(data)), nil
		},
		opts...,
	))
	return "/" + RoundServiceName + "/", mux
}
