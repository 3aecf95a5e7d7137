package mem

// DefaultBytesPageSize provides a default for Bytes.PageSize: 4 blocks'
// worth (4KiB) of the block-storage address space per allocation, so a
// single-block touch doesn't pull in every other block between it and
// whatever was last allocated.
const DefaultBytesPageSize = 4096

// Bytes implements byte-oriented paged memory with a sparse, gap-tolerant
// page allocation strategy. Used by the block-storage collaborator to back up to N 1KiB
// blocks without committing N*1024 bytes up front.
type Bytes struct {
	PagedCore
	pages [][]byte
}

// Size returns an address one past the end of the last allocated page.
func (m *Bytes) Size() uint {
	if i := len(m.bases) - 1; i >= 0 {
		return m.bases[i] + uint(len(m.pages[i]))
	}
	return 0
}

// Load reads len(buf) bytes starting at addr, zero-filling any unallocated
// pages. Returns an error if Limit would be exceeded.
func (m *Bytes) Load(addr uint, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	end := addr + uint(len(buf))
	if err := m.checkLimit(end, "load"); err != nil {
		return err
	}

	for pageID := m.findPage(addr); addr < end && pageID < len(m.bases); pageID++ {
		base := m.bases[pageID]
		if base > end {
			break
		}
		if skip := int(base) - int(addr); skip > 0 {
			if skip >= len(buf) {
				break
			}
			addr += uint(skip)
			for i := range buf[:skip] {
				buf[i] = 0
			}
			buf = buf[skip:]
		}

		page := m.pages[pageID]
		if skip := int(addr) - int(base); skip > 0 {
			if skip >= len(page) {
				continue
			}
			base += uint(skip)
			page = page[skip:]
		}

		n := copy(buf, page)
		buf = buf[n:]
		addr += uint(n)
	}

	for i := range buf {
		buf[i] = 0
	}
	return nil
}

// Store writes values at addr, allocating pages as needed.
func (m *Bytes) Store(addr uint, values []byte) error {
	if len(values) == 0 {
		return nil
	}
	end := addr + uint(len(values))
	if err := m.checkLimit(end, "stor"); err != nil {
		return err
	}
	if m.PageSize == 0 {
		m.PageSize = DefaultBytesPageSize
	}

	for pageID := m.findPage(addr); addr < end; pageID++ {
		base, size, page := m.allocPage(pageID, addr)
		if skip := addr - base; skip > 0 {
			if skip >= size {
				continue
			}
			base += skip
			page = page[skip:]
		}
		n := copy(page, values)
		values = values[n:]
		addr += uint(n)
	}
	return nil
}

func (m *Bytes) allocPage(pageID int, addr uint) (base, size uint, page []byte) {
	base, size, isNew := m.PagedCore.allocPage(pageID, addr)
	if isNew {
		page = make([]byte, size)
		if pageID == len(m.bases) {
			m.pages = append(m.pages, page)
		} else {
			m.pages = append(m.pages, nil)
			copy(m.pages[pageID+1:], m.pages[pageID:])
			m.pages[pageID] = page
		}
	} else {
		page = m.pages[pageID]
	}
	return base, size, page
}
