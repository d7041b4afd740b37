package blockdev

import (
	"github.com/pkg/errors"
	"github.com/thesues/dandy-go/block"
)

//Replace overwrites len(src) bytes of bd at addr. addr does not need to be
//erase aligned: every touched erase block is read back, erased, patched and
//programmed again so bytes outside [addr, addr+len(src)) keep their values.
//Erase blocks fully covered by src are not read back.
//
//Replace allocates one erase block of scratch memory per call. It stops at
//the first failing device call; blocks handled before the failure stay
//modified.
func Replace(bd BlockDevice, src []byte, addr uint64) error {
	if len(src) == 0 {
		return nil
	}

	eraseSize := bd.EraseSize()
	if eraseSize == 0 {
		panic("Replace: erase size is zero")
	}
	bs := block.Size(eraseSize)

	size := uint64(len(src))
	blockAddr := bs.FloorAlign(addr)
	offset := addr - blockAddr
	buffer := make([]byte, eraseSize)

	//the first block is always patched
	toWrite := eraseSize - offset
	if size < toWrite {
		toWrite = size
	}
	if err := patchBlock(bd, buffer, src[:toWrite], blockAddr, offset); err != nil {
		return err
	}
	if toWrite >= size {
		return nil
	}

	size -= toWrite
	src = src[toWrite:]
	blockAddr += eraseSize

	//from here on blockAddr is erase aligned
	if !bs.IsAligned(blockAddr) {
		panic("Replace: block address is not aligned")
	}

	for size > 0 {
		if size >= eraseSize {
			if err := bd.Erase(blockAddr, eraseSize); err != nil {
				return errors.Wrapf(err, "replace: erase %#x", blockAddr)
			}
			if err := bd.Program(src[:eraseSize], blockAddr); err != nil {
				return errors.Wrapf(err, "replace: program %#x", blockAddr)
			}
			toWrite = eraseSize
		} else {
			if err := patchBlock(bd, buffer, src, blockAddr, 0); err != nil {
				return err
			}
			toWrite = size
		}
		size -= toWrite
		src = src[toWrite:]
		blockAddr += toWrite
	}
	return nil
}

//patchBlock does read, erase, patch and program on the block at blockAddr
func patchBlock(bd BlockDevice, buffer []byte, src []byte, blockAddr uint64, offset uint64) error {
	if err := bd.Read(buffer, blockAddr); err != nil {
		return errors.Wrapf(err, "replace: read %#x", blockAddr)
	}
	if err := bd.Erase(blockAddr, uint64(len(buffer))); err != nil {
		return errors.Wrapf(err, "replace: erase %#x", blockAddr)
	}
	copy(buffer[offset:], src)
	if err := bd.Program(buffer, blockAddr); err != nil {
		return errors.Wrapf(err, "replace: program %#x", blockAddr)
	}
	return nil
}
