package shader

import (
	"encoding/binary"
	"fmt"

	"github.com/bobuhiro11/gosvga/svga"
)

// ParseError reports why a token stream was rejected.
type ParseError struct {
	// Token is the index of the offending token, or -1 for stream-level
	// problems such as a bad length.
	Token  int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Token < 0 {
		return "shader: " + e.Reason
	}

	return fmt.Sprintf("shader: token %d: %s", e.Token, e.Reason)
}

// Unwrap makes every ParseError match svga.ErrMalformedInput.
func (e *ParseError) Unwrap() error {
	return svga.ErrMalformedInput
}

func errorf(tok int, format string, args ...any) error {
	return &ParseError{Token: tok, Reason: fmt.Sprintf(format, args...)}
}

// Bytecode is an accepted token stream.
type Bytecode struct {
	Kind         Kind
	Major, Minor uint8
	// Instructions counts instruction tokens up to and including END,
	// comments excluded.
	Instructions int
	// Code is the normalized copy of the stream. It never aliases the
	// input.
	Code []byte
}

// Validate checks code as a program of the given kind.
func Validate(kind Kind, code []byte) error {
	_, err := Parse(kind, code)

	return err
}

// Parse validates code and returns a normalized copy of it. Nothing is
// returned on failure.
func Parse(kind Kind, code []byte) (*Bytecode, error) {
	if !kind.Valid() {
		return nil, errorf(-1, "invalid program %v", kind)
	}

	if len(code)%4 != 0 {
		return nil, errorf(-1, "length %d is not a multiple of 4", len(code))
	}

	count := len(code) / 4
	if count < 2 {
		return nil, errorf(-1, "too few tokens (%d)", count)
	}

	if count > MaxTokens {
		return nil, errorf(-1, "too many tokens (%d > %d)", count, MaxTokens)
	}

	out := make([]byte, len(code))
	copy(out, code)

	p := parser{code: out, count: count}

	version := p.token(0)
	if k := versionKind(version); k != kind {
		return nil, errorf(0, "version token %#08x is not a %v shader", version, kind)
	}

	major := versionMajor(version)
	if major < minMajor || major > maxMajor {
		return nil, errorf(0, "unsupported shader model %d", major)
	}

	instructions, err := p.run()
	if err != nil {
		return nil, err
	}

	return &Bytecode{
		Kind:         kind,
		Major:        major,
		Minor:        versionMinor(version),
		Instructions: instructions,
		Code:         out,
	}, nil
}

type parser struct {
	code  []byte
	count int
}

func (p *parser) token(i int) uint32 {
	return binary.LittleEndian.Uint32(p.code[i*4:])
}

func (p *parser) setToken(i int, v uint32) {
	binary.LittleEndian.PutUint32(p.code[i*4:], v)
}

// run scans instructions after the version token until END.
func (p *parser) run() (int, error) {
	instructions := 0

	for i := 1; i < p.count; {
		tok := p.token(i)
		op := opcodeOf(tok)
		remaining := p.count - i - 1

		if op == OpComment {
			n := commentLen(tok)
			if n > remaining {
				return 0, errorf(i, "comment of %d tokens overruns stream (%d left)", n, remaining)
			}

			i += 1 + n

			continue
		}

		instructions++

		if op == OpEnd {
			if tok != EndToken {
				return 0, errorf(i, "malformed end token %#08x", tok)
			}

			return instructions, nil
		}

		n := lengthOf(tok)
		if n > remaining {
			return 0, errorf(i, "instruction declares %d params, %d tokens left", n, remaining)
		}

		if !ignorable(op) {
			info, ok := Lookup(op)
			if !ok {
				return 0, errorf(i, "unknown opcode %#x", uint16(op))
			}

			if err := p.params(i, info, n); err != nil {
				return 0, err
			}
		}

		i += 1 + n
	}

	return 0, errorf(-1, "missing end token")
}

// params classifies the parameters of the instruction at token at. Only the
// first min(declared, table max) parameters are checked; the rest are
// skipped.
func (p *parser) params(at int, info Info, declared int) error {
	checked := min(declared, info.MaxParams())

	for k := 0; k < checked; k++ {
		idx := at + 1 + k

		var err error

		switch info.Params[k] {
		case ClassDestination, ClassSource:
			err = checkRegister(idx, p.token(idx))
		case ClassLabel:
			if rt := regType(p.token(idx)); rt != RegLabel {
				err = errorf(idx, "%s: register type %d is not a label", info.Name, rt)
			}
		case ClassDeclaration:
			p.declaration(idx, k+1 < checked)
		case ClassNone:
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func checkRegister(idx int, tok uint32) error {
	rt := regType(tok)
	if !allowedRegs[rt] {
		return errorf(idx, "register type %d not allowed", rt)
	}

	if rt == RegMiscType {
		if num := regNum(tok); num != MiscPosition && num != MiscFace {
			return errorf(idx, "misc register %d is neither position nor face", num)
		}
	}

	return nil
}

// declaration normalizes a sampler DCL that leaves its texture type unset
// to a 2D sampler. hasTarget is false when the declared register is not
// among the checked parameters.
func (p *parser) declaration(idx int, hasTarget bool) {
	if !hasTarget || regType(p.token(idx+1)) != RegSampler {
		return
	}

	tok := p.token(idx)
	if samplerType(tok) == SamplerUnknown {
		p.setToken(idx, tok&^samplerMask|Sampler2D<<samplerShift)
	}
}
