package consensus

import (
	"encoding/binary"
	"fmt"
)

func readU32le(b []byte, off *int) (uint32, error) {
	if *off+4 > len(b) {
		return 0, txerr(TX_ERR_PARSE, "unexpected EOF (u32le)")
	}
	v := binary.LittleEndian.Uint32(b[*off : *off+4])
	*off += 4
	return v, nil
}

func readU64le(b []byte, off *int) (uint64, error) {
	if *off+8 > len(b) {
		return 0, txerr(TX_ERR_PARSE, "unexpected EOF (u64le)")
	}
	v := binary.LittleEndian.Uint64(b[*off : *off+8])
	*off += 8
	return v, nil
}

func readHash32(b []byte, off *int) ([32]byte, error) {
	var h [32]byte
	if *off+32 > len(b) {
		return h, txerr(TX_ERR_PARSE, "unexpected EOF (byte32)")
	}
	copy(h[:], b[*off:*off+32])
	*off += 32
	return h, nil
}

// readTable splits a molecule table (or dynvec) into its fields.
// want < 0 accepts any field count.
func readTable(b []byte, want int, name string) ([][]byte, error) {
	off := 0
	total, err := readU32le(b, &off)
	if err != nil {
		return nil, txerr(TX_ERR_PARSE, name+": missing header")
	}
	if uint64(total) != uint64(len(b)) {
		return nil, txerr(TX_ERR_PARSE, fmt.Sprintf("%s: full size %d, have %d bytes", name, total, len(b)))
	}
	if total == 4 {
		if want > 0 {
			return nil, txerr(TX_ERR_PARSE, fmt.Sprintf("%s: want %d fields, got 0", name, want))
		}
		return nil, nil
	}
	first, err := readU32le(b, &off)
	if err != nil {
		return nil, txerr(TX_ERR_PARSE, name+": missing first offset")
	}
	if first%4 != 0 || first < 8 || uint64(first) > uint64(len(b)) {
		return nil, txerr(TX_ERR_PARSE, fmt.Sprintf("%s: bad first offset %d", name, first))
	}
	count := int(first/4) - 1
	if want >= 0 && count != want {
		return nil, txerr(TX_ERR_PARSE, fmt.Sprintf("%s: want %d fields, got %d", name, want, count))
	}
	offsets := make([]int, 0, count+1)
	offsets = append(offsets, int(first))
	for i := 1; i < count; i++ {
		v, err := readU32le(b, &off)
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, int(v))
	}
	offsets = append(offsets, len(b))
	fields := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		start, end := offsets[i], offsets[i+1]
		if start > end || end > len(b) {
			return nil, txerr(TX_ERR_PARSE, fmt.Sprintf("%s: offsets not monotonic at field %d", name, i))
		}
		fields = append(fields, b[start:end])
	}
	return fields, nil
}

// readFixvec splits a fixvec of itemSize-byte items.
func readFixvec(b []byte, itemSize int, name string) ([][]byte, error) {
	off := 0
	n, err := readU32le(b, &off)
	if err != nil {
		return nil, txerr(TX_ERR_PARSE, name+": missing item count")
	}
	if uint64(len(b)-4) != uint64(n)*uint64(itemSize) {
		return nil, txerr(TX_ERR_PARSE, fmt.Sprintf("%s: %d items of %d bytes, have %d bytes", name, n, itemSize, len(b)-4))
	}
	items := make([][]byte, 0, n)
	for i := 0; i < int(n); i++ {
		items = append(items, b[4+i*itemSize:4+(i+1)*itemSize])
	}
	return items, nil
}

func readBytesField(b []byte, name string) ([]byte, error) {
	off := 0
	n, err := readU32le(b, &off)
	if err != nil {
		return nil, txerr(TX_ERR_PARSE, name+": missing length")
	}
	if uint64(len(b)-4) != uint64(n) {
		return nil, txerr(TX_ERR_PARSE, fmt.Sprintf("%s: length %d, have %d bytes", name, n, len(b)-4))
	}
	return append([]byte(nil), b[4:]...), nil
}

func DecodeScript(b []byte) (Script, error) {
	fields, err := readTable(b, 3, "script")
	if err != nil {
		return Script{}, err
	}
	if len(fields[0]) != 32 || len(fields[1]) != 1 {
		return Script{}, txerr(TX_ERR_PARSE, "script: bad code_hash or hash_type size")
	}
	ht := ScriptHashType(fields[1][0])
	if !ht.Valid() {
		return Script{}, txerr(TX_ERR_PARSE, fmt.Sprintf("script: invalid hash_type %d", fields[1][0]))
	}
	args, err := readBytesField(fields[2], "script args")
	if err != nil {
		return Script{}, err
	}
	var s Script
	copy(s.CodeHash[:], fields[0])
	s.HashType = ht
	s.Args = args
	return s, nil
}

func DecodeOutPoint(b []byte) (OutPoint, error) {
	if len(b) != outPointSize {
		return OutPoint{}, txerr(TX_ERR_PARSE, fmt.Sprintf("out point: want %d bytes, got %d", outPointSize, len(b)))
	}
	off := 0
	h, _ := readHash32(b, &off)
	idx, _ := readU32le(b, &off)
	return OutPoint{TxHash: h, Index: idx}, nil
}

func DecodeCellInput(b []byte) (CellInput, error) {
	if len(b) != cellInputSize {
		return CellInput{}, txerr(TX_ERR_PARSE, fmt.Sprintf("cell input: want %d bytes, got %d", cellInputSize, len(b)))
	}
	off := 0
	since, _ := readU64le(b, &off)
	point, err := DecodeOutPoint(b[off:])
	if err != nil {
		return CellInput{}, err
	}
	return CellInput{Since: since, PreviousOutput: point}, nil
}

func decodeCellDep(b []byte) (CellDep, error) {
	if len(b) != cellDepSize {
		return CellDep{}, txerr(TX_ERR_PARSE, "cell dep: bad size")
	}
	point, err := DecodeOutPoint(b[:outPointSize])
	if err != nil {
		return CellDep{}, err
	}
	dt := DepType(b[outPointSize])
	if dt != DepTypeCode && dt != DepTypeDepGroup {
		return CellDep{}, txerr(TX_ERR_PARSE, fmt.Sprintf("cell dep: invalid dep_type %d", b[outPointSize]))
	}
	return CellDep{OutPoint: point, DepType: dt}, nil
}

func DecodeCellOutput(b []byte) (CellOutput, error) {
	fields, err := readTable(b, 3, "cell output")
	if err != nil {
		return CellOutput{}, err
	}
	if len(fields[0]) != 8 {
		return CellOutput{}, txerr(TX_ERR_PARSE, "cell output: bad capacity size")
	}
	lock, err := DecodeScript(fields[1])
	if err != nil {
		return CellOutput{}, err
	}
	out := CellOutput{
		Capacity: binary.LittleEndian.Uint64(fields[0]),
		Lock:     lock,
	}
	if len(fields[2]) > 0 {
		typ, err := DecodeScript(fields[2])
		if err != nil {
			return CellOutput{}, err
		}
		out.Type = &typ
	}
	return out, nil
}

// DecodeOutPointVec decodes a dep group cell's data.
func DecodeOutPointVec(b []byte) ([]OutPoint, error) {
	items, err := readFixvec(b, outPointSize, "out point vec")
	if err != nil {
		return nil, err
	}
	out := make([]OutPoint, 0, len(items))
	for _, it := range items {
		p, err := DecodeOutPoint(it)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// SerializeOutPointVec encodes out points as dep group cell data.
func SerializeOutPointVec(points []OutPoint) []byte {
	items := make([]byte, 0, len(points)*outPointSize)
	for _, p := range points {
		items = append(items, p.Serialize()...)
	}
	return serializeFixvec(len(points), items)
}

func decodeBytesVec(b []byte, name string) ([][]byte, error) {
	items, err := readTable(b, -1, name)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(items))
	for _, it := range items {
		v, err := readBytesField(it, name+" item")
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeRawTransaction(b []byte) (*Transaction, error) {
	fields, err := readTable(b, 6, "raw transaction")
	if err != nil {
		return nil, err
	}
	if len(fields[0]) != 4 {
		return nil, txerr(TX_ERR_PARSE, "raw transaction: bad version size")
	}
	tx := &Transaction{Version: binary.LittleEndian.Uint32(fields[0])}

	deps, err := readFixvec(fields[1], cellDepSize, "cell deps")
	if err != nil {
		return nil, err
	}
	for _, it := range deps {
		d, err := decodeCellDep(it)
		if err != nil {
			return nil, err
		}
		tx.CellDeps = append(tx.CellDeps, d)
	}

	headers, err := readFixvec(fields[2], 32, "header deps")
	if err != nil {
		return nil, err
	}
	for _, it := range headers {
		var h [32]byte
		copy(h[:], it)
		tx.HeaderDeps = append(tx.HeaderDeps, h)
	}

	inputs, err := readFixvec(fields[3], cellInputSize, "inputs")
	if err != nil {
		return nil, err
	}
	for _, it := range inputs {
		in, err := DecodeCellInput(it)
		if err != nil {
			return nil, err
		}
		tx.Inputs = append(tx.Inputs, in)
	}

	outputs, err := readTable(fields[4], -1, "outputs")
	if err != nil {
		return nil, err
	}
	for _, it := range outputs {
		o, err := DecodeCellOutput(it)
		if err != nil {
			return nil, err
		}
		tx.Outputs = append(tx.Outputs, o)
	}

	tx.OutputsData, err = decodeBytesVec(fields[5], "outputs_data")
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// DecodeTransaction parses the full Transaction table.
func DecodeTransaction(b []byte) (*Transaction, error) {
	fields, err := readTable(b, 2, "transaction")
	if err != nil {
		return nil, err
	}
	tx, err := decodeRawTransaction(fields[0])
	if err != nil {
		return nil, err
	}
	tx.Witnesses, err = decodeBytesVec(fields[1], "witnesses")
	if err != nil {
		return nil, err
	}
	return tx, nil
}
