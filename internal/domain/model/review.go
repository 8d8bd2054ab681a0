package model

import "errors"

// pending → 終端（accept/reject）の承認ステートマシン共通部品。
// 支払い検証と画像承認が同じ形なので、遷移判定はここに寄せる。

type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

var (
	ErrReviewFinalized    = errors.New("review already finalized")
	ErrReviewBadDecision  = errors.New("invalid review decision")
	ErrReviewNotFinalized = errors.New("review not finalized")
)

// Reviewはpendingと2つの終端状態の組
type Review[S ~string] struct {
	Pending  S
	Accepted S
	Rejected S
}

// Finalizeはcurrentがpendingのときだけ終端へ進める
func (r Review[S]) Finalize(current S, d Decision) (S, error) {
	if current != r.Pending {
		return current, ErrReviewFinalized
	}
	switch d {
	case DecisionAccept:
		return r.Accepted, nil
	case DecisionReject:
		return r.Rejected, nil
	default:
		return current, ErrReviewBadDecision
	}
}

func (r Review[S]) IsTerminal(s S) bool {
	return s == r.Accepted || s == r.Rejected
}
