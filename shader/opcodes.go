package shader

// Class says how the validator treats one parameter slot of an instruction.
type Class uint8

const (
	// ClassNone slots are raw immediates and are not inspected.
	ClassNone Class = iota
	// ClassDestination slots must name a whitelisted register.
	ClassDestination
	// ClassSource slots must name a whitelisted register.
	ClassSource
	// ClassLabel slots must name a label register.
	ClassLabel
	// ClassDeclaration slots carry usage or sampler type bits.
	ClassDeclaration
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassDestination:
		return "destination"
	case ClassSource:
		return "source"
	case ClassLabel:
		return "label"
	case ClassDeclaration:
		return "declaration"
	default:
		return "invalid"
	}
}

// Table opcodes.
const (
	OpNop Opcode = iota
	OpMov
	OpAdd
	OpSub
	OpMad
	OpMul
	OpRcp
	OpRsq
	OpDp3
	OpDp4
	OpMin
	OpMax
	OpSlt
	OpSge
	OpExp
	OpLog
	OpLit
	OpDst
	OpLrp
	OpFrc
	OpM4x4
	OpM4x3
	OpM3x4
	OpM3x3
	OpM3x2
	OpCall
	OpCallnz
	OpLoop
	OpRet
	OpEndloop
	OpLabel
	OpDcl
	OpPow
	OpCrs
	OpSgn
	OpAbs
	OpNrm
	OpSincos
	OpRep
	OpEndrep
	OpIf
	OpIfc
	OpElse
	OpEndif
	OpBreak
	OpBreakc
	OpMova
	OpDefb
	OpDefi
)

const (
	OpTexcoord Opcode = 64 + iota
	OpTexkill
	OpTex
	OpTexbem
	OpTexbeml
	OpTexreg2ar
	OpTexreg2gb
	OpTexm3x2pad
	OpTexm3x2tex
	OpTexm3x3pad
	OpTexm3x3tex
	opReserved0
	OpTexm3x3spec
	OpTexm3x3vspec
	OpExpp
	OpLogp
	OpCnd
	OpDef
	OpTexreg2rgb
	OpTexdp3tex
	OpTexm3x2depth
	OpTexdp3
	OpTexm3x3
	OpTexdepth
	OpCmp
	OpBem
	OpDp2add
	OpDsx
	OpDsy
	OpTexldd
	OpSetp
	OpTexldl
	OpBreakp

	opTableSize = int(OpBreakp) + 1
)

// Info describes one known opcode.
type Info struct {
	Name   string
	Params []Class
}

// MaxParams is the number of parameters the validator inspects at most.
func (i Info) MaxParams() int {
	return len(i.Params)
}

const (
	d = ClassDestination
	s = ClassSource
	l = ClassLabel
	x = ClassDeclaration
	n = ClassNone
)

// opcodeTable is indexed by opcode. A zero Name marks a reserved opcode.
var opcodeTable = [opTableSize]Info{
	OpNop:     {"nop", nil},
	OpMov:     {"mov", []Class{d, s}},
	OpAdd:     {"add", []Class{d, s, s}},
	OpSub:     {"sub", []Class{d, s, s}},
	OpMad:     {"mad", []Class{d, s, s, s}},
	OpMul:     {"mul", []Class{d, s, s}},
	OpRcp:     {"rcp", []Class{d, s}},
	OpRsq:     {"rsq", []Class{d, s}},
	OpDp3:     {"dp3", []Class{d, s, s}},
	OpDp4:     {"dp4", []Class{d, s, s}},
	OpMin:     {"min", []Class{d, s, s}},
	OpMax:     {"max", []Class{d, s, s}},
	OpSlt:     {"slt", []Class{d, s, s}},
	OpSge:     {"sge", []Class{d, s, s}},
	OpExp:     {"exp", []Class{d, s}},
	OpLog:     {"log", []Class{d, s}},
	OpLit:     {"lit", []Class{d, s}},
	OpDst:     {"dst", []Class{d, s, s}},
	OpLrp:     {"lrp", []Class{d, s, s, s}},
	OpFrc:     {"frc", []Class{d, s}},
	OpM4x4:    {"m4x4", []Class{d, s, s}},
	OpM4x3:    {"m4x3", []Class{d, s, s}},
	OpM3x4:    {"m3x4", []Class{d, s, s}},
	OpM3x3:    {"m3x3", []Class{d, s, s}},
	OpM3x2:    {"m3x2", []Class{d, s, s}},
	OpCall:    {"call", []Class{l}},
	OpCallnz:  {"callnz", []Class{l, s}},
	OpLoop:    {"loop", []Class{s, s}},
	OpRet:     {"ret", nil},
	OpEndloop: {"endloop", nil},
	OpLabel:   {"label", []Class{l}},
	OpDcl:     {"dcl", []Class{x, d}},
	OpPow:     {"pow", []Class{d, s, s}},
	OpCrs:     {"crs", []Class{d, s, s}},
	OpSgn:     {"sgn", []Class{d, s, s, s}},
	OpAbs:     {"abs", []Class{d, s}},
	OpNrm:     {"nrm", []Class{d, s}},
	OpSincos:  {"sincos", []Class{d, s, s, s}},
	OpRep:     {"rep", []Class{s}},
	OpEndrep:  {"endrep", nil},
	OpIf:      {"if", []Class{s}},
	OpIfc:     {"ifc", []Class{s, s}},
	OpElse:    {"else", nil},
	OpEndif:   {"endif", nil},
	OpBreak:   {"break", nil},
	OpBreakc:  {"breakc", []Class{s, s}},
	OpMova:    {"mova", []Class{d, s}},
	OpDefb:    {"defb", []Class{d, n}},
	OpDefi:    {"defi", []Class{d, n, n, n, n}},

	OpTexcoord:     {"texcoord", []Class{d, s}},
	OpTexkill:      {"texkill", []Class{d}},
	OpTex:          {"tex", []Class{d, s, s}},
	OpTexbem:       {"texbem", []Class{d, s}},
	OpTexbeml:      {"texbeml", []Class{d, s}},
	OpTexreg2ar:    {"texreg2ar", []Class{d, s}},
	OpTexreg2gb:    {"texreg2gb", []Class{d, s}},
	OpTexm3x2pad:   {"texm3x2pad", []Class{d, s}},
	OpTexm3x2tex:   {"texm3x2tex", []Class{d, s}},
	OpTexm3x3pad:   {"texm3x3pad", []Class{d, s}},
	OpTexm3x3tex:   {"texm3x3tex", []Class{d, s}},
	OpTexm3x3spec:  {"texm3x3spec", []Class{d, s, s}},
	OpTexm3x3vspec: {"texm3x3vspec", []Class{d, s}},
	OpExpp:         {"expp", []Class{d, s}},
	OpLogp:         {"logp", []Class{d, s}},
	OpCnd:          {"cnd", []Class{d, s, s, s}},
	OpDef:          {"def", []Class{d, n, n, n, n}},
	OpTexreg2rgb:   {"texreg2rgb", []Class{d, s}},
	OpTexdp3tex:    {"texdp3tex", []Class{d, s}},
	OpTexm3x2depth: {"texm3x2depth", []Class{d, s}},
	OpTexdp3:       {"texdp3", []Class{d, s}},
	OpTexm3x3:      {"texm3x3", []Class{d, s}},
	OpTexdepth:     {"texdepth", []Class{d}},
	OpCmp:          {"cmp", []Class{d, s, s, s}},
	OpBem:          {"bem", []Class{d, s, s}},
	OpDp2add:       {"dp2add", []Class{d, s, s, s}},
	OpDsx:          {"dsx", []Class{d, s}},
	OpDsy:          {"dsy", []Class{d, s}},
	OpTexldd:       {"texldd", []Class{d, s, s, s, s}},
	OpSetp:         {"setp", []Class{d, s, s}},
	OpTexldl:       {"texldl", []Class{d, s, s}},
	OpBreakp:       {"breakp", []Class{s}},
}

// Lookup returns the table entry of op. ok is false for reserved opcodes
// and opcodes outside the table.
func Lookup(op Opcode) (Info, bool) {
	if int(op) >= opTableSize {
		return Info{}, false
	}

	info := opcodeTable[op]
	if info.Name == "" {
		return Info{}, false
	}

	return info, true
}

// ignorable opcodes are skipped together with their parameters.
func ignorable(op Opcode) bool {
	return op == OpPhase || op == OpComment
}

// allowedRegs is the register whitelist for destination and source slots.
var allowedRegs = map[RegType]bool{
	RegTemp:      true,
	RegInput:     true,
	RegConst:     true,
	RegAddr:      true,
	RegRastOut:   true,
	RegAttrOut:   true,
	RegOutput:    true,
	RegConstInt:  true,
	RegColorOut:  true,
	RegDepthOut:  true,
	RegSampler:   true,
	RegConstBool: true,
	RegLoop:      true,
	RegMiscType:  true,
	RegLabel:     true,
	RegPredicate: true,
}
