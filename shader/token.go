// Package shader validates shader model 2-4 token streams submitted by the
// guest before they are accepted as shader programs.
//
// A stream is a sequence of little-endian 32-bit tokens:
//
//	[version][instruction][param]...[instruction][param]...[END]
//
// The version token carries the program kind in its high half and the
// major/minor version in its low half. Instruction tokens carry the opcode
// in bits 15..0 and the parameter count in bits 27..24.
package shader

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Kind is the pipeline stage a program runs in.
type Kind uint32

const (
	Vertex Kind = 1
	Pixel  Kind = 2
)

func (k Kind) String() string {
	switch k {
	case Vertex:
		return "vertex"
	case Pixel:
		return "pixel"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

// Valid reports whether k is Vertex or Pixel.
func (k Kind) Valid() bool {
	return k == Vertex || k == Pixel
}

// ParseKind converts "vertex"/"vs" or "pixel"/"ps" into a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "vertex", "vs":
		return Vertex, nil
	case "pixel", "ps":
		return Pixel, nil
	default:
		return 0, fmt.Errorf("unknown shader kind %q", s)
	}
}

const (
	versionVertex = 0xFFFE
	versionPixel  = 0xFFFF

	// EndToken terminates every stream.
	EndToken uint32 = 0x0000FFFF

	// MaxTokens bounds the stream length accepted from the guest.
	MaxTokens = 64 * 1024

	minMajor = 2
	maxMajor = 4
)

// VersionToken builds the version token for kind and version major.minor.
func VersionToken(kind Kind, major, minor uint8) uint32 {
	hi := uint32(versionVertex)
	if kind == Pixel {
		hi = versionPixel
	}

	return hi<<16 | uint32(major)<<8 | uint32(minor)
}

func versionKind(tok uint32) Kind {
	switch tok >> 16 {
	case versionVertex:
		return Vertex
	case versionPixel:
		return Pixel
	default:
		return 0
	}
}

func versionMajor(tok uint32) uint8 { return uint8(tok >> 8) }
func versionMinor(tok uint32) uint8 { return uint8(tok) }

// Opcode is the low 16 bits of an instruction token.
type Opcode uint16

// Opcodes outside the instruction table.
const (
	OpPhase   Opcode = 0xFFFD
	OpComment Opcode = 0xFFFE
	OpEnd     Opcode = 0xFFFF
)

// InstructionToken builds an instruction token declaring n parameters.
func InstructionToken(op Opcode, n int) uint32 {
	return uint32(op) | uint32(n&0xF)<<24
}

// CommentToken builds a COMMENT token announcing n body tokens.
func CommentToken(n int) uint32 {
	return uint32(OpComment) | uint32(n&0x7FFF)<<16
}

func opcodeOf(tok uint32) Opcode { return Opcode(tok) }
func lengthOf(tok uint32) int    { return int(tok>>24) & 0xF }
func commentLen(tok uint32) int  { return int(tok>>16) & 0x7FFF }

// RegType is the register file a parameter token addresses.
type RegType uint32

const (
	RegTemp        RegType = 0
	RegInput       RegType = 1
	RegConst       RegType = 2
	RegAddr        RegType = 3
	RegRastOut     RegType = 4
	RegAttrOut     RegType = 5
	RegOutput      RegType = 6
	RegConstInt    RegType = 7
	RegColorOut    RegType = 8
	RegDepthOut    RegType = 9
	RegSampler     RegType = 10
	RegConst2      RegType = 11
	RegConst3      RegType = 12
	RegConst4      RegType = 13
	RegConstBool   RegType = 14
	RegLoop        RegType = 15
	RegTempFloat16 RegType = 16
	RegMiscType    RegType = 17
	RegLabel       RegType = 18
	RegPredicate   RegType = 19
)

// MISCTYPE register numbers.
const (
	MiscPosition = 0
	MiscFace     = 1
)

// ParamToken builds a register parameter token for register num of type rt.
func ParamToken(rt RegType, num uint32) uint32 {
	return 1<<31 | (uint32(rt)&7)<<28 | (uint32(rt)&0x18)<<8 | num&0x7FF
}

func regType(tok uint32) RegType {
	return RegType((tok>>28)&7 | (tok>>8)&0x18)
}

func regNum(tok uint32) uint32 { return tok & 0x7FF }

// Sampler texture types carried in bits 30..27 of a DCL declaration token.
const (
	SamplerUnknown = 0
	Sampler2D      = 2
	SamplerCube    = 3
	SamplerVolume  = 4

	samplerShift = 27
	samplerMask  = 0xF << samplerShift
)

// SamplerDeclToken builds the declaration token of a sampler DCL.
func SamplerDeclToken(textureType uint32) uint32 {
	return 1<<31 | (textureType<<samplerShift)&samplerMask
}

func samplerType(tok uint32) uint32 { return (tok & samplerMask) >> samplerShift }

// Encode packs tokens into a little-endian stream.
func Encode(tokens ...uint32) []byte {
	b := make([]byte, 4*len(tokens))
	for i, t := range tokens {
		binary.LittleEndian.PutUint32(b[i*4:], t)
	}

	return b
}

// Tokens unpacks a stream. Trailing bytes that do not form a whole token
// are dropped.
func Tokens(code []byte) []uint32 {
	t := make([]uint32, len(code)/4)
	for i := range t {
		t[i] = binary.LittleEndian.Uint32(code[i*4:])
	}

	return t
}
