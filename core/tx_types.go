package core

// TxType categorizes the transaction kinds the state machine understands.
// The enum is string-backed so canonical serialization stays readable and
// unknown values are rejected at parse time rather than silently coerced.

import "fmt"

type TxType string

const (
	TxTransfer          TxType = "TRANSFER"
	TxMessagePayment    TxType = "MESSAGE_PAYMENT"
	TxPrivateMessage    TxType = "PRIVATE_MESSAGE"
	TxPostContent       TxType = "POST_CONTENT"
	TxPostAction        TxType = "POST_ACTION"
	TxLike              TxType = "LIKE"
	TxComment           TxType = "COMMENT"
	TxShare             TxType = "SHARE"
	TxFollow            TxType = "FOLLOW"
	TxUnfollow          TxType = "UNFOLLOW"
	TxProfileUpdate     TxType = "PROFILE_UPDATE"
	TxReward            TxType = "REWARD"
	TxBatch             TxType = "BATCH"
	TxConversationBatch TxType = "CONVERSATION_BATCH"
)

var knownTxTypes = map[TxType]struct{}{
	TxTransfer: {}, TxMessagePayment: {}, TxPrivateMessage: {},
	TxPostContent: {}, TxPostAction: {}, TxLike: {}, TxComment: {},
	TxShare: {}, TxFollow: {}, TxUnfollow: {}, TxProfileUpdate: {},
	TxReward: {}, TxBatch: {}, TxConversationBatch: {},
}

// ParseTxType validates a wire value against the known enum.
func ParseTxType(s string) (TxType, error) {
	t := TxType(s)
	if _, ok := knownTxTypes[t]; !ok {
		return "", fmt.Errorf("%w: unknown transaction type %q", ErrInvalidStructure, s)
	}
	return t, nil
}

// Valid reports whether the type is a known enum member.
func (t TxType) Valid() bool {
	_, ok := knownTxTypes[t]
	return ok
}

// IsSocial reports whether the primary fee share routes to the target
// account rather than the proposer's node wallet.
func (t TxType) IsSocial() bool {
	switch t {
	case TxLike, TxComment, TxFollow, TxUnfollow, TxShare, TxPostContent:
		return true
	}
	return false
}

// IsBatch reports whether the type wraps inner transactions.
func (t TxType) IsBatch() bool {
	return t == TxBatch || t == TxConversationBatch
}

// TimeGateExempt reports whether the sub-FAST inclusion wait does not apply:
// social actions, batch wrappers, profile updates and system rewards flow
// regardless of fee magnitude.
func (t TxType) TimeGateExempt() bool {
	if t.IsSocial() || t.IsBatch() {
		return true
	}
	switch t {
	case TxPostAction, TxProfileUpdate, TxReward:
		return true
	}
	return false
}

// MinFee returns the protocol minimum fee for the type. Zero means no
// static minimum (the transfer fee is dynamic, see transactions.go).
func (t TxType) MinFee() uint64 {
	switch t {
	case TxLike:
		return MinFeeLike
	case TxFollow, TxUnfollow:
		return MinFeeFollow
	case TxComment:
		return MinFeeComment
	}
	return 0
}
