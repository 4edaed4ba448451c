package xdr

import "fmt"

// Operation type discriminants for the bodies the engine handles.
const (
	OpPayment                  uint32 = 1
	OpPathPaymentStrictReceive uint32 = 2
	OpChangeTrust              uint32 = 6
	OpPathPaymentStrictSend    uint32 = 13
	OpInvokeHostFunction       uint32 = 24
)

// Operation is one transaction operation with an optional source override.
type Operation struct {
	SourceAccount *MuxedAccount
	Body          OperationBody
}

// OperationBody is the operation union; the pointer matching Type is set.
type OperationBody struct {
	Type                     uint32
	Payment                  *PaymentOp
	PathPaymentStrictReceive *PathPaymentStrictReceiveOp
	ChangeTrust              *ChangeTrustOp
	PathPaymentStrictSend    *PathPaymentStrictSendOp
	InvokeHostFunction       *InvokeHostFunctionOp
}

// PaymentOp sends a fixed amount of one asset.
type PaymentOp struct {
	Destination MuxedAccount
	Asset       Asset
	Amount      int64 // stroops
}

// PathPaymentStrictSendOp trades an exact send amount for at least DestMin.
type PathPaymentStrictSendOp struct {
	SendAsset   Asset
	SendAmount  int64
	Destination MuxedAccount
	DestAsset   Asset
	DestMin     int64
	Path        []Asset
}

// PathPaymentStrictReceiveOp trades at most SendMax for an exact receive.
type PathPaymentStrictReceiveOp struct {
	SendAsset   Asset
	SendMax     int64
	Destination MuxedAccount
	DestAsset   Asset
	DestAmount  int64
	Path        []Asset
}

// ChangeTrustOp creates, adjusts or removes a trustline. Limit zero removes
// it.
type ChangeTrustOp struct {
	Line  Asset
	Limit int64
}

// MaxTrustLimit is the i64 ceiling used when establishing trustlines.
const MaxTrustLimit int64 = 0x7fffffffffffffff

// InvokeContractArgs names the contract function call of a Soroban
// invocation.
type InvokeContractArgs struct {
	ContractAddress SCAddress
	FunctionName    string
	Args            []SCVal
}

// InvokeHostFunctionOp invokes a contract. Only the invoke-contract host
// function arm is supported; authorization entries are carried as the raw
// XDR blobs the simulation endpoint returns.
type InvokeHostFunctionOp struct {
	Invoke  InvokeContractArgs
	AuthRaw [][]byte
}

func (op Operation) encode(e *Encoder) error {
	if op.SourceAccount != nil {
		e.PutUint32(1)
		op.SourceAccount.encode(e)
	} else {
		e.PutUint32(0)
	}
	return op.Body.encode(e)
}

func (b OperationBody) encode(e *Encoder) error {
	e.PutUint32(b.Type)
	switch b.Type {
	case OpPayment:
		p := b.Payment
		p.Destination.encode(e)
		p.Asset.encode(e)
		e.PutInt64(p.Amount)
	case OpPathPaymentStrictReceive:
		p := b.PathPaymentStrictReceive
		p.SendAsset.encode(e)
		e.PutInt64(p.SendMax)
		p.Destination.encode(e)
		p.DestAsset.encode(e)
		e.PutInt64(p.DestAmount)
		e.PutUint32(uint32(len(p.Path)))
		for _, hop := range p.Path {
			hop.encode(e)
		}
	case OpChangeTrust:
		c := b.ChangeTrust
		c.Line.encode(e)
		e.PutInt64(c.Limit)
	case OpPathPaymentStrictSend:
		p := b.PathPaymentStrictSend
		p.SendAsset.encode(e)
		e.PutInt64(p.SendAmount)
		p.Destination.encode(e)
		p.DestAsset.encode(e)
		e.PutInt64(p.DestMin)
		e.PutUint32(uint32(len(p.Path)))
		for _, hop := range p.Path {
			hop.encode(e)
		}
	case OpInvokeHostFunction:
		i := b.InvokeHostFunction
		// HostFunction arm 0: invoke contract.
		e.PutUint32(0)
		i.Invoke.ContractAddress.encode(e)
		e.PutString(i.Invoke.FunctionName)
		e.PutUint32(uint32(len(i.Invoke.Args)))
		for _, arg := range i.Invoke.Args {
			if err := arg.Encode(e); err != nil {
				return err
			}
		}
		e.PutUint32(uint32(len(i.AuthRaw)))
		for _, raw := range i.AuthRaw {
			e.PutRaw(raw)
		}
	default:
		return fmt.Errorf("%w: operation type %d", ErrUnsupported, b.Type)
	}
	return nil
}

func decodeOperation(d *Decoder) (Operation, error) {
	var op Operation
	present, err := d.Uint32()
	if err != nil {
		return op, err
	}
	if present == 1 {
		src, err := decodeMuxedAccount(d)
		if err != nil {
			return op, err
		}
		op.SourceAccount = &src
	}
	op.Body, err = decodeOperationBody(d)
	return op, err
}

func decodeOperationBody(d *Decoder) (OperationBody, error) {
	typ, err := d.Uint32()
	if err != nil {
		return OperationBody{}, err
	}
	b := OperationBody{Type: typ}
	switch typ {
	case OpPayment:
		p := &PaymentOp{}
		if p.Destination, err = decodeMuxedAccount(d); err != nil {
			return b, err
		}
		if p.Asset, err = decodeAsset(d); err != nil {
			return b, err
		}
		if p.Amount, err = d.Int64(); err != nil {
			return b, err
		}
		b.Payment = p
	case OpPathPaymentStrictReceive:
		p := &PathPaymentStrictReceiveOp{}
		if p.SendAsset, err = decodeAsset(d); err != nil {
			return b, err
		}
		if p.SendMax, err = d.Int64(); err != nil {
			return b, err
		}
		if p.Destination, err = decodeMuxedAccount(d); err != nil {
			return b, err
		}
		if p.DestAsset, err = decodeAsset(d); err != nil {
			return b, err
		}
		if p.DestAmount, err = d.Int64(); err != nil {
			return b, err
		}
		if p.Path, err = decodeAssetPath(d); err != nil {
			return b, err
		}
		b.PathPaymentStrictReceive = p
	case OpChangeTrust:
		c := &ChangeTrustOp{}
		if c.Line, err = decodeAsset(d); err != nil {
			return b, err
		}
		if c.Limit, err = d.Int64(); err != nil {
			return b, err
		}
		b.ChangeTrust = c
	case OpPathPaymentStrictSend:
		p := &PathPaymentStrictSendOp{}
		if p.SendAsset, err = decodeAsset(d); err != nil {
			return b, err
		}
		if p.SendAmount, err = d.Int64(); err != nil {
			return b, err
		}
		if p.Destination, err = decodeMuxedAccount(d); err != nil {
			return b, err
		}
		if p.DestAsset, err = decodeAsset(d); err != nil {
			return b, err
		}
		if p.DestMin, err = d.Int64(); err != nil {
			return b, err
		}
		if p.Path, err = decodeAssetPath(d); err != nil {
			return b, err
		}
		b.PathPaymentStrictSend = p
	case OpInvokeHostFunction:
		i, err := decodeInvokeHostFunction(d)
		if err != nil {
			return b, err
		}
		b.InvokeHostFunction = i
	default:
		return b, fmt.Errorf("%w: operation type %d", ErrUnsupported, typ)
	}
	return b, nil
}

func decodeAssetPath(d *Decoder) ([]Asset, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if n > 5 {
		return nil, fmt.Errorf("xdr: path length %d exceeds 5", n)
	}
	path := make([]Asset, 0, n)
	for i := uint32(0); i < n; i++ {
		hop, err := decodeAsset(d)
		if err != nil {
			return nil, err
		}
		path = append(path, hop)
	}
	return path, nil
}

func decodeInvokeHostFunction(d *Decoder) (*InvokeHostFunctionOp, error) {
	fnType, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if fnType != 0 {
		return nil, fmt.Errorf("%w: host function type %d", ErrUnsupported, fnType)
	}
	op := &InvokeHostFunctionOp{}
	if op.Invoke.ContractAddress, err = decodeSCAddress(d); err != nil {
		return nil, err
	}
	if op.Invoke.FunctionName, err = d.String(32); err != nil {
		return nil, err
	}
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	op.Invoke.Args = make([]SCVal, 0, n)
	for i := uint32(0); i < n; i++ {
		arg, err := DecodeSCVal(d)
		if err != nil {
			return nil, err
		}
		op.Invoke.Args = append(op.Invoke.Args, arg)
	}
	nAuth, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nAuth; i++ {
		start := d.Offset()
		if err := skipAuthorizationEntry(d); err != nil {
			return nil, err
		}
		op.AuthRaw = append(op.AuthRaw, d.Raw(start))
	}
	return op, nil
}

// skipAuthorizationEntry walks one SorobanAuthorizationEntry structurally so
// its raw span can be captured without modeling the full type.
func skipAuthorizationEntry(d *Decoder) error {
	credType, err := d.Uint32()
	if err != nil {
		return err
	}
	switch credType {
	case 0: // source account credentials, void
	case 1: // address credentials
		if _, err := decodeSCAddress(d); err != nil {
			return err
		}
		if _, err := d.Int64(); err != nil { // nonce
			return err
		}
		if _, err := d.Uint32(); err != nil { // signature expiration ledger
			return err
		}
		if _, err := DecodeSCVal(d); err != nil { // signature
			return err
		}
	default:
		return fmt.Errorf("%w: credentials type %d", ErrUnsupported, credType)
	}
	return skipAuthorizedInvocation(d)
}

func skipAuthorizedInvocation(d *Decoder) error {
	fnType, err := d.Uint32()
	if err != nil {
		return err
	}
	if fnType != 0 {
		// Contract-creation authorizations are outside the engine's scope.
		return fmt.Errorf("%w: authorized function type %d", ErrUnsupported, fnType)
	}
	if _, err := decodeSCAddress(d); err != nil {
		return err
	}
	if _, err := d.String(32); err != nil {
		return err
	}
	nArgs, err := d.Uint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < nArgs; i++ {
		if _, err := DecodeSCVal(d); err != nil {
			return err
		}
	}
	nSub, err := d.Uint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < nSub; i++ {
		if err := skipAuthorizedInvocation(d); err != nil {
			return err
		}
	}
	return nil
}
