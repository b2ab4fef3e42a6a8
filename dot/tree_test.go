// Package dot implements the shared data-object tree
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package dot_test

import (
	"time"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/codec"
	"github.com/weavemesh/weavemesh/dot"
	"github.com/weavemesh/weavemesh/seq"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func newReg() *dot.Registry {
	reg := dot.NewRegistry()
	Expect(reg.Reg(&dot.TypeMeta{
		Code: "Grp",
		Fields: []codec.FieldSpec{
			{Name: "name", Kind: codec.KindString},
		},
	})).To(Succeed())
	Expect(reg.Reg(&dot.TypeMeta{
		Code:       "Itm",
		ParentCode: "Grp",
		Fields: []codec.FieldSpec{
			{Name: "v", Kind: codec.KindInt},
			{Name: "label", Kind: codec.KindString},
		},
	})).To(Succeed())
	Expect(reg.Reg(&dot.TypeMeta{
		Code:          "Ci",
		CaseSensitive: false,
	})).To(Succeed())
	return reg
}

var _ = Describe("Tree", func() {
	var (
		reg  *dot.Registry
		tree *dot.Tree
	)
	BeforeEach(func() {
		reg = newReg()
		tree = dot.NewTree(reg, false)
	})

	It("creates children idempotently", func() {
		a, err := tree.Root().CreateChild("Grp", "g1")
		Expect(err).NotTo(HaveOccurred())
		b, err := tree.Root().CreateChild("Grp", "g1")
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(BeIdenticalTo(b))
	})

	It("rejects a child under the wrong parent", func() {
		_, err := tree.Root().CreateChild("Itm", "i1")
		Expect(err).To(HaveOccurred())
	})

	It("keeps (type, id) unique through create/rename/remove", func() {
		g, _ := tree.Root().CreateChild("Grp", "g1")
		i1, _ := g.CreateChild("Itm", "a")
		_, _ = g.CreateChild("Itm", "b")

		_, err := i1.Rename("b") // taken
		Expect(err).To(HaveOccurred())

		shadow, err := i1.Rename("c")
		Expect(err).NotTo(HaveOccurred())
		Expect(shadow.RenameTarget()).To(Equal("c"))
		Expect(shadow.Obsolete()).To(BeTrue())
		Expect(g.GetChild("Itm", "a")).To(BeNil())
		Expect(g.GetChild("Itm", "c")).To(BeIdenticalTo(i1))

		i1.Remove()
		Expect(g.GetChild("Itm", "c")).To(BeNil())

		// the freed ID can be reused
		i3, err := g.CreateChild("Itm", "c")
		Expect(err).NotTo(HaveOccurred())
		Expect(i3).NotTo(BeIdenticalTo(i1))
	})

	It("stores case-insensitive IDs lowercased and tolerates both cases", func() {
		c, _ := tree.Root().CreateChild("Ci", "AbC")
		Expect(c.ID()).To(Equal("abc"))
		Expect(tree.Root().GetChild("Ci", "ABC")).To(BeIdenticalTo(c))
		Expect(tree.Root().GetChild("Ci", "abc")).To(BeIdenticalTo(c))
	})

	It("supports undelete after a vetoed removal", func() {
		g, _ := tree.Root().CreateChild("Grp", "g1")
		g.Remove()
		Expect(tree.Root().GetChild("Grp", "g1")).To(BeNil())
		g.Undelete()
		Expect(tree.Root().GetChild("Grp", "g1")).To(BeIdenticalTo(g))
	})

	It("computes the key tuple from the parent path", func() {
		g, _ := tree.Root().CreateChild("Grp", "g1")
		i, _ := g.CreateChild("Itm", "x")
		Expect(i.Keys()).To(Equal([]string{"g1", "x"}))
	})

	Describe("ProcessCommand", func() {
		mkCmd := func(prefix byte, keys []string, fields string) *seq.Command {
			return &seq.Command{
				Prefix: prefix,
				Type:   "Itm",
				Ts:     time.Now(),
				Origin: "node-aaaaaaaa",
				Dests:  codec.BroadcastDests(),
				Keys:   keys,
				Fields: fields,
			}
		}

		It("creates missing intermediates and parses the leaf", func() {
			res, err := tree.ProcessCommand(mkCmd(cmn.PrefixNormal, []string{"g9", "i1"}, "7,hello"), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Act).To(Equal(dot.ActCreate))
			Expect(res.Obj.GetInt("v")).To(BeEquivalentTo(7))
			Expect(res.Obj.GetString("label")).To(Equal("hello"))
			Expect(tree.Root().GetChild("Grp", "g9")).NotTo(BeNil())

			res, err = tree.ProcessCommand(mkCmd(cmn.PrefixNormal, []string{"g9", "i1"}, "8,hello"), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Act).To(Equal(dot.ActUpdate))
			Expect(res.Obj.GetInt("v")).To(BeEquivalentTo(8))
		})

		It("fails on a key tuple that does not match the parent path", func() {
			_, err := tree.ProcessCommand(mkCmd(cmn.PrefixNormal, []string{"i1"}, "7,x"), "")
			Expect(cmn.IsErrParse(err)).To(BeTrue())
		})

		It("applies removals and ignores removals of unknown objects", func() {
			_, err := tree.ProcessCommand(mkCmd(cmn.PrefixNormal, []string{"g1", "i1"}, "1,a"), "")
			Expect(err).NotTo(HaveOccurred())

			res, err := tree.ProcessCommand(mkCmd(cmn.PrefixRemove, []string{"g1", "i1"}, ""), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Act).To(Equal(dot.ActRemove))

			res, err = tree.ProcessCommand(mkCmd(cmn.PrefixRemove, []string{"g1", "zz"}, ""), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Act).To(Equal(dot.ActNone))
		})

		It("applies renames carried by the obsolete shadow", func() {
			_, err := tree.ProcessCommand(mkCmd(cmn.PrefixNormal, []string{"g1", "old"}, "1,a"), "")
			Expect(err).NotTo(HaveOccurred())
			g := tree.Root().GetChild("Grp", "g1")

			res, err := tree.ProcessCommand(mkCmd(cmn.PrefixRemove, []string{"g1", "old"}, "new"), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Act).To(Equal(dot.ActRename))
			Expect(res.OldID).To(Equal("old"))
			Expect(g.GetChild("Itm", "old")).To(BeNil())
			Expect(g.GetChild("Itm", "new")).To(BeIdenticalTo(res.Obj))
		})
	})

	Describe("FilteredChildren", func() {
		It("tests direct children of the target type, else recurses", func() {
			g1, _ := tree.Root().CreateChild("Grp", "g1")
			g2, _ := tree.Root().CreateChild("Grp", "g2")
			for _, id := range []string{"a", "b"} {
				_, _ = g1.CreateChild("Itm", id)
			}
			_, _ = g2.CreateChild("Itm", "c")

			all := tree.Root().FilteredChildren(dot.FilterFunc{Code: "Itm"})
			Expect(all).To(HaveLen(3))

			onlyG1 := tree.Root().FilteredChildren(dot.FilterFunc{
				Code:   "Itm",
				Parent: func(o *dot.Object) bool { return o.ID() == "g1" },
			})
			Expect(onlyG1).To(HaveLen(2))

			direct := g1.FilteredChildren(dot.FilterFunc{
				Code:   "Itm",
				Object: func(o *dot.Object) bool { return o.ID() == "a" },
			})
			Expect(direct).To(HaveLen(1))
		})
	})

	It("snapshots all live objects of a type", func() {
		g, _ := tree.Root().CreateChild("Grp", "g1")
		for _, id := range []string{"a", "b", "c"} {
			_, _ = g.CreateChild("Itm", id)
		}
		objs, err := tree.ObjectsOf("Itm")
		Expect(err).NotTo(HaveOccurred())
		Expect(objs).To(HaveLen(3))
	})
})
