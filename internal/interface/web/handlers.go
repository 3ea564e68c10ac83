package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashlocked/swapd/internal/core/application"
	"github.com/hashlocked/swapd/internal/core/domain"
	"github.com/hashlocked/swapd/internal/core/ports"
)

// envelope is the uniform response shape of every endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type handler struct {
	svc *application.Service
}

func newHandler(svc *application.Service) *handler {
	return &handler{svc}
}

type createSwapRequest struct {
	Direction           string `json:"direction" binding:"required"`
	FromToken           string `json:"from_token" binding:"required"`
	ToToken             string `json:"to_token" binding:"required"`
	Amount              uint64 `json:"amount" binding:"required"`
	CounterAmount       uint64 `json:"counter_amount" binding:"required"`
	SenderA             string `json:"sender_a" binding:"required"`
	ReceiverA           string `json:"receiver_a" binding:"required"`
	SenderB             string `json:"sender_b" binding:"required"`
	ReceiverB           string `json:"receiver_b" binding:"required"`
	TimelockSeconds     int64  `json:"timelock_seconds" binding:"required"`
	PartialFillsEnabled bool   `json:"partial_fills_enabled"`
}

type fillRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
	TxRef  string `json:"tx_ref"`
}

type signedRequest struct {
	PrivateKey string `json:"private_key" binding:"required"`
	// Preimage is only needed for the second claim of a swap, hex-encoded.
	Preimage string `json:"preimage"`
	// Chain selects the refund side: "evm" or "utxo".
	Chain string `json:"chain"`
}

func (h *handler) createSwap(c *gin.Context) {
	var req createSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	direction := domain.DirectionEVMToUTXO
	switch req.Direction {
	case "evm_to_utxo":
	case "utxo_to_evm":
		direction = domain.DirectionUTXOToEVM
	default:
		badRequest(c, errors.New("direction must be evm_to_utxo or utxo_to_evm"))
		return
	}

	swap, err := h.svc.CreateSwap(c.Request.Context(), application.SwapRequest{
		Direction:           direction,
		FromToken:           req.FromToken,
		ToToken:             req.ToToken,
		Amount:              req.Amount,
		CounterAmount:       req.CounterAmount,
		SenderA:             req.SenderA,
		ReceiverA:           req.ReceiverA,
		SenderB:             req.SenderB,
		ReceiverB:           req.ReceiverB,
		TimelockDuration:    time.Duration(req.TimelockSeconds) * time.Second,
		PartialFillsEnabled: req.PartialFillsEnabled,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, envelope{
		Success: true,
		Message: "swap created",
		Data:    toSwapResponse(swap),
	})
}

func (h *handler) getSwap(c *gin.Context) {
	info, err := h.svc.GetSwap(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	fills := make([]fillResponse, 0, len(info.Fills))
	for _, fill := range info.Fills {
		fills = append(fills, toFillResponse(&fill))
	}
	data := gin.H{
		"swap":  toSwapResponse(&info.Swap),
		"fills": fills,
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: data})
}

func (h *handler) listSwaps(c *gin.Context) {
	swaps, err := h.svc.ListSwaps(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	out := make([]swapResponse, 0, len(swaps))
	for i := range swaps {
		out = append(out, toSwapResponse(&swaps[i]))
	}
	c.JSON(http.StatusOK, envelope{Success: true, Data: out})
}

func (h *handler) fillSwap(c *gin.Context) {
	var req fillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	fill, swap, err := h.svc.Fill(c.Request.Context(), c.Param("id"), req.Amount, req.TxRef)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, envelope{
		Success: true,
		Message: "fill recorded",
		Data: gin.H{
			"fill": toFillResponse(fill),
			"swap": toSwapResponse(swap),
		},
	})
}

func (h *handler) lockSwap(c *gin.Context) {
	var req signedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	swap, err := h.svc.Lock(
		c.Request.Context(), c.Param("id"), ports.Credentials{PrivateKey: req.PrivateKey},
	)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{
		Success: true,
		Message: "leg locked",
		Data:    toSwapResponse(swap),
	})
}

func (h *handler) claimSwap(c *gin.Context) {
	var req signedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	swap, err := h.svc.Claim(
		c.Request.Context(), c.Param("id"), req.Preimage,
		ports.Credentials{PrivateKey: req.PrivateKey},
	)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{
		Success: true,
		Message: "leg claimed",
		Data:    toSwapResponse(swap),
	})
}

func (h *handler) refundSwap(c *gin.Context) {
	var req signedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	chain := domain.ChainEVM
	switch req.Chain {
	case "evm":
	case "utxo":
		chain = domain.ChainUTXO
	default:
		badRequest(c, errors.New("chain must be evm or utxo"))
		return
	}

	swap, err := h.svc.Refund(
		c.Request.Context(), c.Param("id"), chain,
		ports.Credentials{PrivateKey: req.PrivateKey},
	)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{
		Success: true,
		Message: "leg refunded",
		Data:    toSwapResponse(swap),
	})
}

func (h *handler) getInfo(c *gin.Context) {
	info, err := h.svc.GetInfo(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}

	chains := make([]gin.H, 0, len(info.Chains))
	for _, chain := range info.Chains {
		chains = append(chains, gin.H{
			"chain":     chain.Chain,
			"connected": chain.Connected,
			"error":     chain.Error,
		})
	}
	jobs := make([]gin.H, 0, len(info.Resolver.Jobs))
	for _, job := range info.Resolver.Jobs {
		jobs = append(jobs, gin.H{
			"name":      job.Name,
			"failures":  job.Failures,
			"skip_left": job.SkipLeft,
		})
	}
	c.JSON(http.StatusOK, envelope{
		Success: true,
		Data: gin.H{
			"version":            info.BuildInfo.Version,
			"commit":             info.BuildInfo.Commit,
			"date":               info.BuildInfo.Date,
			"safety_margin_secs": int64(info.SafetyMargin.Seconds()),
			"chains":             chains,
			"swap_count":         info.SwapCount,
			"resolver": gin.H{
				"running":            info.Resolver.Running,
				"poll_interval_secs": int64(info.Resolver.PollInterval.Seconds()),
				"jobs":               jobs,
			},
		},
	})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
}

// abortWithError maps domain failures onto HTTP statuses.
func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var (
		valErr      *domain.ValidationError
		fundsErr    *domain.InsufficientFundsError
		hashErr     *domain.HashlockMismatchError
		expiredErr  *domain.TimelockExpiredError
		notExpired  *domain.TimelockNotExpiredError
		fillErr     *domain.PartialFillError
		netErr      *domain.NetworkError
		notDeployed *domain.ContractNotDeployedError
	)
	switch {
	case errors.Is(err, domain.ErrSwapNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.As(err, &valErr):
		status = http.StatusBadRequest
	case errors.As(err, &hashErr):
		status = http.StatusBadRequest
	case errors.As(err, &fundsErr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &expiredErr), errors.As(err, &notExpired):
		status = http.StatusConflict
	case errors.As(err, &fillErr):
		status = http.StatusConflict
	case errors.As(err, &netErr):
		status = http.StatusBadGateway
	case errors.As(err, &notDeployed):
		status = http.StatusServiceUnavailable
	}

	// nolint:all
	c.Error(err)
	c.JSON(status, envelope{Success: false, Error: err.Error()})
}

type swapResponse struct {
	Id                  string  `json:"id"`
	Direction           string  `json:"direction"`
	FromToken           string  `json:"from_token"`
	ToToken             string  `json:"to_token"`
	Amount              uint64  `json:"amount"`
	CounterAmount       uint64  `json:"counter_amount"`
	FilledAmount        uint64  `json:"filled_amount"`
	RemainingAmount     uint64  `json:"remaining_amount"`
	FillPercentage      float64 `json:"fill_percentage"`
	Status              string  `json:"status"`
	Phase               string  `json:"phase"`
	SecretHash          string  `json:"secret_hash"`
	TimelockA           int64   `json:"timelock_a"`
	TimelockB           int64   `json:"timelock_b"`
	PartialFillsEnabled bool    `json:"partial_fills_enabled"`
	ContractA           string  `json:"contract_a,omitempty"`
	ContractB           string  `json:"contract_b,omitempty"`
	CreatedAt           int64   `json:"created_at"`
	UpdatedAt           int64   `json:"updated_at"`
	CompletedAt         int64   `json:"completed_at,omitempty"`
	ErrorMessage        string  `json:"error_message,omitempty"`
}

func toSwapResponse(swap *domain.Swap) swapResponse {
	resp := swapResponse{
		Id:                  swap.Id,
		Direction:           swap.Direction.String(),
		FromToken:           swap.FromToken,
		ToToken:             swap.ToToken,
		Amount:              swap.Amount,
		CounterAmount:       swap.CounterAmount,
		FilledAmount:        swap.FilledAmount,
		RemainingAmount:     swap.RemainingAmount(),
		FillPercentage:      swap.FillPercentage(),
		Status:              swap.Status.String(),
		Phase:               swap.Phase.String(),
		SecretHash:          swap.SecretHash,
		TimelockA:           swap.TimelockA,
		TimelockB:           swap.TimelockB,
		PartialFillsEnabled: swap.PartialFillsEnabled,
		CreatedAt:           swap.CreatedAt,
		UpdatedAt:           swap.UpdatedAt,
		CompletedAt:         swap.CompletedAt,
		ErrorMessage:        swap.ErrorMessage,
	}
	if swap.ContractA != nil {
		resp.ContractA = swap.ContractA.ContractId
	}
	if swap.ContractB != nil {
		resp.ContractB = swap.ContractB.ContractId
	}
	return resp
}

type fillResponse struct {
	Id        string `json:"id"`
	SwapId    string `json:"swap_id"`
	Amount    uint64 `json:"amount"`
	Timestamp int64  `json:"timestamp"`
	TxRef     string `json:"tx_ref,omitempty"`
}

func toFillResponse(fill *domain.PartialFill) fillResponse {
	return fillResponse{
		Id:        fill.Id,
		SwapId:    fill.SwapId,
		Amount:    fill.Amount,
		Timestamp: fill.Timestamp,
		TxRef:     fill.TxRef,
	}
}
